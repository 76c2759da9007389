package runtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockSource serves whatever sample the test sets before each poll.
type mockSource struct {
	sample *Sample
	err    error
}

func (m *mockSource) FetchSample(_ context.Context, deviceID string) (*Sample, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := *m.sample
	s.DeviceID = deviceID
	return &s, nil
}

// mockStates is an in-memory StateRepository mirroring the SQLite
// partial-update and check-and-set semantics.
type mockStates struct {
	rows    map[string]*DeviceRuntimeState
	saveErr error
}

func newMockStates() *mockStates {
	return &mockStates{rows: make(map[string]*DeviceRuntimeState)}
}

func (m *mockStates) LoadState(_ context.Context, deviceID string) (*DeviceRuntimeState, error) {
	st, ok := m.rows[deviceID]
	if !ok {
		return nil, ErrStateNotFound
	}
	copied := *st
	return &copied, nil
}

func (m *mockStates) SaveState(_ context.Context, deviceID string, update StateUpdate) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	st, ok := m.rows[deviceID]
	if !ok {
		return ErrStateNotFound
	}
	if update.IsRunning != nil {
		st.IsRunning = *update.IsRunning
	}
	switch {
	case update.ClearSessionStarted:
		st.SessionStartedAt = nil
	case update.SessionStartedAt != nil:
		v := *update.SessionStartedAt
		st.SessionStartedAt = &v
	}
	switch {
	case update.ClearLastTick:
		st.LastTickAt = nil
	case update.LastTickAt != nil:
		v := *update.LastTickAt
		st.LastTickAt = &v
	}
	if update.SessionSeconds != nil {
		st.SessionSeconds = *update.SessionSeconds
	}
	if update.LastMode != nil {
		st.LastMode = *update.LastMode
	}
	if update.LastEquipmentState != nil {
		st.LastEquipmentState = *update.LastEquipmentState
	}
	if update.LastSeenAt != nil {
		v := *update.LastSeenAt
		st.LastSeenAt = &v
	}
	if update.LastRevision != nil {
		st.LastRevision = *update.LastRevision
	}
	if update.TempSum != nil {
		st.TempSum = *update.TempSum
	}
	if update.HumiditySum != nil {
		st.HumiditySum = *update.HumiditySum
	}
	if update.SampleCount != nil {
		st.SampleCount = *update.SampleCount
	}
	st.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockStates) SetReachable(_ context.Context, deviceID string, reachable bool) (bool, error) {
	st, ok := m.rows[deviceID]
	if !ok {
		return false, nil
	}
	if st.IsReachable == reachable {
		return false, nil
	}
	st.IsReachable = reachable
	return true, nil
}

func (m *mockStates) EnsureState(_ context.Context, deviceID string) error {
	if _, ok := m.rows[deviceID]; !ok {
		m.rows[deviceID] = &DeviceRuntimeState{DeviceID: deviceID, IsReachable: true}
	}
	return nil
}

func (m *mockStates) ListStaleDevices(_ context.Context, olderThan time.Time) ([]string, error) {
	var ids []string
	for id, st := range m.rows {
		if st.IsReachable && st.LastSeenAt != nil && st.LastSeenAt.Before(olderThan) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type mockSessions struct {
	sessions  []*Session
	insertErr error
}

func (m *mockSessions) InsertSession(_ context.Context, session *Session) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, s := range m.sessions {
		if s.DeviceID == session.DeviceID && s.StartedAt.Equal(session.StartedAt) {
			return ErrDuplicateSession
		}
	}
	copied := *session
	m.sessions = append(m.sessions, &copied)
	return nil
}

type mockFingerprints struct {
	rows map[string]*EmittedFingerprint
}

func newMockFingerprints() *mockFingerprints {
	return &mockFingerprints{rows: make(map[string]*EmittedFingerprint)}
}

func (m *mockFingerprints) LoadFingerprint(_ context.Context, deviceID string) (*EmittedFingerprint, error) {
	fp, ok := m.rows[deviceID]
	if !ok {
		return nil, nil
	}
	copied := *fp
	return &copied, nil
}

func (m *mockFingerprints) SaveFingerprint(_ context.Context, fp *EmittedFingerprint) error {
	copied := *fp
	m.rows[fp.DeviceID] = &copied
	return nil
}

type mockSink struct {
	events     []*Event
	deliverErr error
}

func (m *mockSink) DeliverEvent(_ context.Context, event *Event) error {
	if m.deliverErr != nil {
		return m.deliverErr
	}
	copied := *event
	m.events = append(m.events, &copied)
	return nil
}

func (m *mockSink) ofType(t EventType) []*Event {
	var out []*Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	src      *mockSource
	states   *mockStates
	sessions *mockSessions
	fps      *mockFingerprints
	sink     *mockSink
	engine   *Engine
	dev      DeviceInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		src:      &mockSource{},
		states:   newMockStates(),
		sessions: &mockSessions{},
		fps:      newMockFingerprints(),
		sink:     &mockSink{},
		dev:      DeviceInfo{ID: "dev-1", UserID: "user-1", EquipmentType: "heat_pump"},
	}

	cfg := Config{
		MaxAccumulate:        600 * time.Second,
		Heartbeat:            time.Hour,
		TempTolerance:        0.5,
		TreatBareFanAsActive: true,
		Scheduler: SchedulerConfig{
			Min:                  30 * time.Second,
			Max:                  30 * time.Minute,
			LongSessionThreshold: 2 * time.Hour,
		},
	}

	f.engine = NewEngine(f.src, f.states, f.sessions, f.fps, f.sink, cfg)
	if err := f.states.EnsureState(context.Background(), f.dev.ID); err != nil {
		t.Fatalf("seeding state: %v", err)
	}

	return f
}

func (f *fixture) poll(t *testing.T, status string, reachable bool, at time.Time) time.Duration {
	t.Helper()
	f.src.sample = &Sample{
		EquipmentStatus: status,
		Reachable:       reachable,
		ObservedAt:      at,
	}
	delay, err := f.engine.Poll(context.Background(), f.dev)
	if err != nil {
		t.Fatalf("Poll(%q at %v): %v", status, at, err)
	}
	return delay
}

func (f *fixture) state(t *testing.T) *DeviceRuntimeState {
	t.Helper()
	st, err := f.states.LoadState(context.Background(), f.dev.ID)
	if err != nil {
		t.Fatalf("loading state: %v", err)
	}
	return st
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Normal cooling cycle: start, steady ticks, end. Runtime equals the
// sum of observed gaps and ticks emit nothing.
func TestEngine_CoolingCycle(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "", true, t0)
	f.poll(t, "compCool1,fan", true, t0.Add(30*time.Second))

	st := f.state(t)
	if !st.IsRunning {
		t.Fatal("expected running after activation")
	}
	if st.SessionSeconds != 0 {
		t.Errorf("seconds at start = %d, want 0", st.SessionSeconds)
	}
	if st.LastMode != ModeCooling {
		t.Errorf("mode = %q, want cooling", st.LastMode)
	}
	if got := len(f.sink.ofType(EventSessionStart)); got != 1 {
		t.Fatalf("SESSION_START count = %d, want 1", got)
	}

	// Ten steady 30-second ticks.
	for i := 2; i <= 11; i++ {
		f.poll(t, "compCool1,fan", true, t0.Add(time.Duration(i)*30*time.Second))
	}

	st = f.state(t)
	if st.SessionSeconds != 300 {
		t.Errorf("accumulated seconds = %d, want 300", st.SessionSeconds)
	}
	if got := len(f.sink.ofType(EventSessionEnd)); got != 0 {
		t.Errorf("SESSION_END during ticks = %d, want 0", got)
	}

	// Back to idle 30 seconds later.
	f.poll(t, "", true, t0.Add(12*30*time.Second))

	st = f.state(t)
	if st.IsRunning {
		t.Error("expected not running after session end")
	}
	if st.SessionStartedAt != nil || st.LastTickAt != nil {
		t.Error("session markers not cleared after end")
	}

	if len(f.sessions.sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(f.sessions.sessions))
	}
	session := f.sessions.sessions[0]
	if session.RuntimeSeconds != 330 {
		t.Errorf("session runtime = %d, want 330", session.RuntimeSeconds)
	}
	if session.Mode != ModeCooling {
		t.Errorf("session mode = %q, want cooling", session.Mode)
	}
	if !session.StartedAt.Equal(t0.Add(30 * time.Second)) {
		t.Errorf("session started at %v, want %v", session.StartedAt, t0.Add(30*time.Second))
	}

	ends := f.sink.ofType(EventSessionEnd)
	if len(ends) != 1 {
		t.Fatalf("SESSION_END count = %d, want 1", len(ends))
	}
	if ends[0].RuntimeSeconds == nil || *ends[0].RuntimeSeconds != 330 {
		t.Errorf("SESSION_END runtime = %v, want 330", ends[0].RuntimeSeconds)
	}
}

// A long gap between ticks contributes at most MaxAccumulate seconds.
func TestEngine_TickGapClamped(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "compHeat1", true, t0)
	f.poll(t, "compHeat1", true, t0.Add(700*time.Second))

	st := f.state(t)
	if st.SessionSeconds != 600 {
		t.Errorf("seconds after 700s gap = %d, want clamped 600", st.SessionSeconds)
	}
}

// Mode change mid-session closes the current accounting window and
// opens a new one with the counter reset.
func TestEngine_ModeSwitch(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "compHeat1,fan", true, t0)
	f.poll(t, "compHeat1,fan", true, t0.Add(30*time.Second))
	f.poll(t, "compCool1,fan", true, t0.Add(60*time.Second))

	if len(f.sessions.sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(f.sessions.sessions))
	}
	heating := f.sessions.sessions[0]
	if heating.Mode != ModeHeating {
		t.Errorf("closed session mode = %q, want heating", heating.Mode)
	}
	if heating.RuntimeSeconds != 60 {
		t.Errorf("closed session runtime = %d, want 60", heating.RuntimeSeconds)
	}

	st := f.state(t)
	if !st.IsRunning || st.LastMode != ModeCooling {
		t.Errorf("state after switch: running=%v mode=%q, want running cooling", st.IsRunning, st.LastMode)
	}
	if st.SessionSeconds != 0 {
		t.Errorf("seconds after switch = %d, want 0", st.SessionSeconds)
	}
	if st.SessionStartedAt == nil || !st.SessionStartedAt.Equal(t0.Add(60*time.Second)) {
		t.Errorf("new session start = %v, want %v", st.SessionStartedAt, t0.Add(60*time.Second))
	}

	if got := len(f.sink.ofType(EventSessionEnd)); got != 1 {
		t.Errorf("SESSION_END count = %d, want 1", got)
	}
	if got := len(f.sink.ofType(EventSessionStart)); got != 2 {
		t.Errorf("SESSION_START count = %d, want 2", got)
	}
}

// Connectivity loss mid-session force-ends the session with elapsed
// time up to the last tick, emits SESSION_END before the offline
// CONNECTIVITY_CHANGE, and reports each flip at most once.
func TestEngine_UnreachableMidSession(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "compCool1", true, t0)
	f.poll(t, "compCool1", true, t0.Add(30*time.Second))
	f.poll(t, "compCool1", true, t0.Add(60*time.Second))

	f.poll(t, "", false, t0.Add(90*time.Second))

	st := f.state(t)
	if st.IsRunning {
		t.Error("expected not running after connectivity loss")
	}
	if st.IsReachable {
		t.Error("expected unreachable")
	}

	if len(f.sessions.sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(f.sessions.sessions))
	}
	session := f.sessions.sessions[0]
	if session.RuntimeSeconds != 60 {
		t.Errorf("force-ended runtime = %d, want 60 (no delta past last tick)", session.RuntimeSeconds)
	}
	if !session.EndedAt.Equal(t0.Add(60 * time.Second)) {
		t.Errorf("ended at %v, want last tick %v", session.EndedAt, t0.Add(60*time.Second))
	}

	ends := f.sink.ofType(EventSessionEnd)
	changes := f.sink.ofType(EventConnectivityChange)
	if len(ends) != 1 || len(changes) != 1 {
		t.Fatalf("got %d SESSION_END and %d CONNECTIVITY_CHANGE, want 1 each", len(ends), len(changes))
	}
	if ends[0].IsReachable {
		t.Error("force-end SESSION_END should report unreachable")
	}

	// The end must precede the offline notice in the emission order.
	var endIdx, changeIdx int
	for i, e := range f.sink.events {
		switch e.Type {
		case EventSessionEnd:
			endIdx = i
		case EventConnectivityChange:
			changeIdx = i
		}
	}
	if endIdx > changeIdx {
		t.Error("SESSION_END emitted after CONNECTIVITY_CHANGE")
	}

	// Repeated unreachable samples do not re-report the flip.
	f.poll(t, "", false, t0.Add(120*time.Second))
	f.poll(t, "", false, t0.Add(150*time.Second))
	if got := len(f.sink.ofType(EventConnectivityChange)); got != 1 {
		t.Errorf("CONNECTIVITY_CHANGE after repeats = %d, want 1", got)
	}

	// Recovery flips back exactly once.
	f.poll(t, "", true, t0.Add(180*time.Second))
	f.poll(t, "", true, t0.Add(210*time.Second))

	changes = f.sink.ofType(EventConnectivityChange)
	if len(changes) != 2 {
		t.Fatalf("CONNECTIVITY_CHANGE after recovery = %d, want 2", len(changes))
	}
	if !changes[1].IsReachable {
		t.Error("recovery CONNECTIVITY_CHANGE should report reachable")
	}
}

// A force-end whose persistence fails on the first unreachable poll is
// retried on the next one: the device must not stay stuck running for
// as long as it remains offline.
func TestEngine_UnreachableForceEndRetried(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "compCool1", true, t0)
	f.poll(t, "compCool1", true, t0.Add(30*time.Second))

	// The session insert fails on the unreachable poll. The poll errors
	// out before delivering anything.
	eventsBefore := len(f.sink.events)
	f.sessions.insertErr = errors.New("disk I/O error")
	f.src.sample = &Sample{
		EquipmentStatus: "",
		Reachable:       false,
		ObservedAt:      t0.Add(60 * time.Second),
	}
	if _, err := f.engine.Poll(context.Background(), f.dev); err == nil {
		t.Fatal("expected error from failed session insert")
	}

	st := f.state(t)
	if !st.IsRunning || st.IsReachable {
		t.Fatalf("after failed finalize: running=%v reachable=%v, want running and unreachable", st.IsRunning, st.IsReachable)
	}
	if got := len(f.sink.events) - eventsBefore; got != 0 {
		t.Fatalf("failed poll emitted %d events, want 0", got)
	}

	// Next unreachable poll with persistence healthy completes the end.
	f.sessions.insertErr = nil
	f.poll(t, "", false, t0.Add(90*time.Second))

	st = f.state(t)
	if st.IsRunning {
		t.Error("device still running after retried force-end")
	}
	if len(f.sessions.sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(f.sessions.sessions))
	}
	if got := f.sessions.sessions[0].RuntimeSeconds; got != 30 {
		t.Errorf("force-ended runtime = %d, want 30 (up to last tick)", got)
	}

	// Both the end and the offline notice went out exactly once.
	if got := len(f.sink.ofType(EventSessionEnd)); got != 1 {
		t.Errorf("SESSION_END count = %d, want 1", got)
	}
	if got := len(f.sink.ofType(EventConnectivityChange)); got != 1 {
		t.Errorf("CONNECTIVITY_CHANGE count = %d, want 1", got)
	}

	// Further unreachable polls stay silent.
	f.poll(t, "", false, t0.Add(120*time.Second))
	if got := len(f.sink.events) - eventsBefore; got != 2 {
		t.Errorf("idle unreachable poll emitted %d extra events, want 0", got-2)
	}
}

// The staleness sweep behaves like an explicit unreachable sample.
func TestEngine_MarkStale(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "compHeat1", true, t0)
	f.poll(t, "compHeat1", true, t0.Add(30*time.Second))

	if err := f.engine.MarkStale(context.Background(), f.dev); err != nil {
		t.Fatalf("MarkStale: %v", err)
	}

	st := f.state(t)
	if st.IsRunning || st.IsReachable {
		t.Errorf("after sweep: running=%v reachable=%v, want both false", st.IsRunning, st.IsReachable)
	}
	if len(f.sessions.sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(f.sessions.sessions))
	}
	if got := f.sessions.sessions[0].RuntimeSeconds; got != 30 {
		t.Errorf("force-ended runtime = %d, want 30", got)
	}

	// Second sweep is a no-op.
	if err := f.engine.MarkStale(context.Background(), f.dev); err != nil {
		t.Fatalf("second MarkStale: %v", err)
	}
	if got := len(f.sink.ofType(EventConnectivityChange)); got != 1 {
		t.Errorf("CONNECTIVITY_CHANGE count = %d, want 1", got)
	}
}

// Steady idle samples dedupe: the first emits a STATE_UPDATE, identical
// follow-ups stay silent until temperature moves or the heartbeat lapses.
func TestEngine_SteadyStateDedup(t *testing.T) {
	f := newFixture(t)

	temp := 21.0
	pollWithTemp := func(at time.Time, temperature float64) {
		t.Helper()
		f.src.sample = &Sample{
			EquipmentStatus: "",
			Reachable:       true,
			ObservedAt:      at,
			Telemetry:       Telemetry{Temperature: &temperature},
		}
		if _, err := f.engine.Poll(context.Background(), f.dev); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	pollWithTemp(t0, temp)
	if got := len(f.sink.ofType(EventStateUpdate)); got != 1 {
		t.Fatalf("first poll STATE_UPDATE count = %d, want 1", got)
	}

	// Identical payload, temperature steady: silent.
	pollWithTemp(t0.Add(30*time.Second), temp)
	pollWithTemp(t0.Add(60*time.Second), temp+0.2)
	if got := len(f.sink.ofType(EventStateUpdate)); got != 1 {
		t.Errorf("unchanged polls STATE_UPDATE count = %d, want 1", got)
	}

	// Temperature moves past the tolerance.
	pollWithTemp(t0.Add(90*time.Second), temp+0.6)
	if got := len(f.sink.ofType(EventStateUpdate)); got != 2 {
		t.Errorf("after temp move STATE_UPDATE count = %d, want 2", got)
	}

	// Heartbeat forces an emission even with nothing changed.
	pollWithTemp(t0.Add(90*time.Second+2*time.Hour), temp+0.6)
	if got := len(f.sink.ofType(EventStateUpdate)); got != 3 {
		t.Errorf("after heartbeat STATE_UPDATE count = %d, want 3", got)
	}
}

// An unchanged provider revision short-circuits the poll when no
// session is accumulating.
func TestEngine_RevisionSkip(t *testing.T) {
	f := newFixture(t)

	pollRev := func(at time.Time, revision string) {
		t.Helper()
		f.src.sample = &Sample{
			EquipmentStatus: "",
			Reachable:       true,
			ObservedAt:      at,
			Revision:        revision,
		}
		if _, err := f.engine.Poll(context.Background(), f.dev); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	pollRev(t0, "rev-1")
	emitted := len(f.sink.events)

	pollRev(t0.Add(30*time.Second), "rev-1")
	if len(f.sink.events) != emitted {
		t.Errorf("unchanged revision emitted %d new events, want 0", len(f.sink.events)-emitted)
	}

	st := f.state(t)
	if st.LastSeenAt == nil || !st.LastSeenAt.Equal(t0.Add(30*time.Second)) {
		t.Errorf("last seen = %v, want bumped to %v", st.LastSeenAt, t0.Add(30*time.Second))
	}
}

// Delivery failure surfaces as an error but never blocks the state
// reset: the session is persisted and the device does not stay stuck
// running.
func TestEngine_DeliveryFailureStillResets(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "compCool1", true, t0)
	f.poll(t, "compCool1", true, t0.Add(30*time.Second))

	f.sink.deliverErr = errors.New("broker unavailable")
	f.src.sample = &Sample{
		EquipmentStatus: "",
		Reachable:       true,
		ObservedAt:      t0.Add(60 * time.Second),
	}

	_, err := f.engine.Poll(context.Background(), f.dev)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("Poll error = %v, want ErrDeliveryFailed", err)
	}

	st := f.state(t)
	if st.IsRunning {
		t.Error("state not reset after delivery failure")
	}
	if len(f.sessions.sessions) != 1 {
		t.Errorf("session count = %d, want 1", len(f.sessions.sessions))
	}
}

// A duplicate session insert is tolerated as a no-op.
func TestEngine_DuplicateSessionIgnored(t *testing.T) {
	f := newFixture(t)

	f.poll(t, "compHeat1", true, t0)
	f.sessions.sessions = append(f.sessions.sessions, &Session{
		DeviceID:  f.dev.ID,
		StartedAt: t0,
	})

	// End the session; the insert collides with the pre-existing row.
	f.poll(t, "", true, t0.Add(30*time.Second))

	st := f.state(t)
	if st.IsRunning {
		t.Error("state not reset after duplicate insert")
	}
	if len(f.sessions.sessions) != 1 {
		t.Errorf("session count = %d, want 1 (duplicate rejected)", len(f.sessions.sessions))
	}
}

// Idle polls never open sessions.
func TestEngine_IdleNeverStartsSession(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		f.poll(t, "", true, t0.Add(time.Duration(i)*30*time.Second))
	}

	if len(f.sessions.sessions) != 0 {
		t.Errorf("session count = %d, want 0", len(f.sessions.sessions))
	}
	if got := len(f.sink.ofType(EventSessionStart)); got != 0 {
		t.Errorf("SESSION_START count = %d, want 0", got)
	}
}

// Session averages come from the telemetry accumulated across ticks.
func TestEngine_SessionAverages(t *testing.T) {
	f := newFixture(t)

	pollTelemetry := func(status string, at time.Time, temperature, humidity float64) {
		t.Helper()
		f.src.sample = &Sample{
			EquipmentStatus: status,
			Reachable:       true,
			ObservedAt:      at,
			Telemetry: Telemetry{
				Temperature: &temperature,
				Humidity:    &humidity,
			},
		}
		if _, err := f.engine.Poll(context.Background(), f.dev); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	pollTelemetry("compCool1", t0, 22.0, 40)
	pollTelemetry("compCool1", t0.Add(30*time.Second), 23.0, 50)
	pollTelemetry("", t0.Add(60*time.Second), 24.0, 60)

	if len(f.sessions.sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(f.sessions.sessions))
	}
	session := f.sessions.sessions[0]
	if session.AvgTemperature == nil || *session.AvgTemperature != 22.5 {
		t.Errorf("avg temperature = %v, want 22.5", session.AvgTemperature)
	}
	if session.AvgHumidity == nil || *session.AvgHumidity != 45 {
		t.Errorf("avg humidity = %v, want 45", session.AvgHumidity)
	}
}

// The poll hint stays inside the configured window and drops to the
// maximum while unreachable.
func TestEngine_PollHint(t *testing.T) {
	f := newFixture(t)
	cfg := f.engine.cfg.Scheduler

	delay := f.poll(t, "compCool1", true, t0)
	if delay < cfg.Min || delay > cfg.Max {
		t.Errorf("active hint %v escapes [%v, %v]", delay, cfg.Min, cfg.Max)
	}

	delay = f.poll(t, "", false, t0.Add(30*time.Second))
	if delay != cfg.Max {
		t.Errorf("unreachable hint = %v, want Max %v", delay, cfg.Max)
	}
}
