package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config carries the engine tunables.
type Config struct {
	// MaxAccumulate bounds the contribution of any single tick gap.
	MaxAccumulate time.Duration

	// Heartbeat is the maximum time between emissions for an otherwise
	// unchanged device.
	Heartbeat time.Duration

	// TempTolerance is the temperature movement that forces a
	// STATE_UPDATE on its own.
	TempTolerance float64

	// TreatBareFanAsActive controls the classifier's bare-fan handling.
	TreatBareFanAsActive bool

	// Scheduler bounds the adaptive poll hint.
	Scheduler SchedulerConfig
}

// Engine is the per-device runtime and connectivity state machine. It
// orchestrates one poll for one device: connectivity, session
// accounting, event decisions, persistence and delivery, and the
// next-poll hint.
//
// There is no cross-device shared mutable state, so per-device
// invocations are safe to run concurrently. The caller must not run two
// overlapping polls for the same device; the only same-device race the
// engine tolerates is the staleness sweep, guarded by the repository's
// atomic reachability flip.
type Engine struct {
	source       SampleSource
	states       StateRepository
	sessions     SessionRepository
	fingerprints FingerprintRepository
	sink         EventSink

	tracker    *ConnectivityTracker
	classifier *Classifier
	decider    *EventDecider

	cfg    Config
	logger Logger

	// now is overridable in tests.
	now func() time.Time
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(source SampleSource, states StateRepository, sessions SessionRepository, fingerprints FingerprintRepository, sink EventSink, cfg Config) *Engine {
	return &Engine{
		source:       source,
		states:       states,
		sessions:     sessions,
		fingerprints: fingerprints,
		sink:         sink,
		tracker:      NewConnectivityTracker(states),
		classifier:   NewClassifier(cfg.TreatBareFanAsActive),
		decider:      NewEventDecider(cfg.Heartbeat, cfg.TempTolerance),
		cfg:          cfg,
		logger:       noopLogger{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Poll runs one full cycle for one device: fetch, classify, account,
// emit, persist. It returns the recommended delay before the next poll.
//
// State mutations and event delivery are decoupled: a persisted
// transition is never rolled back because delivery failed. Delivery
// errors come back wrapped in ErrDeliveryFailed for the caller's retry
// policy.
func (e *Engine) Poll(ctx context.Context, dev DeviceInfo) (time.Duration, error) {
	sample, err := e.source.FetchSample(ctx, dev.ID)
	if err != nil {
		return 0, fmt.Errorf("fetching sample for %s: %w", dev.ID, err)
	}

	st, err := e.states.LoadState(ctx, dev.ID)
	if err != nil {
		return 0, fmt.Errorf("loading state for %s: %w", dev.ID, err)
	}

	now := sample.ObservedAt
	if now.IsZero() {
		now = e.now()
	}

	if !sample.Reachable {
		return e.handleUnreachable(ctx, dev, st, sample.Telemetry, now)
	}

	var errs []error

	// Connectivity recovery: any reachable sample flips an unreachable
	// device back online, at most once per actual transition.
	flipped, err := e.tracker.MarkReachable(ctx, dev.ID)
	if err != nil {
		return 0, err
	}
	if flipped {
		st.IsReachable = true
		e.logger.Info("device back online", "device_id", dev.ID)
		ev := e.buildEvent(dev, EventConnectivityChange, st, st.LastEquipmentState, st.IsRunning, sample.Telemetry, now, nil)
		if err := e.deliver(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	// Cheap skip: the provider's revision token says nothing changed.
	// Only safe when no session is accumulating.
	if sample.Revision != "" && sample.Revision == st.LastRevision && !st.IsRunning {
		if err := e.states.SaveState(ctx, dev.ID, StateUpdate{LastSeenAt: &now}); err != nil {
			return 0, fmt.Errorf("bumping last_seen for %s: %w", dev.ID, err)
		}
		return e.hint(st, flipped, false), errors.Join(errs...)
	}

	cs := e.classifier.Classify(sample.EquipmentStatus)
	modeChanged := st.IsRunning && cs.Active && st.LastMode != "" && cs.Mode != st.LastMode
	action := Decide(st.IsRunning, cs.Active, modeChanged)

	e.logger.Debug("poll decision",
		"device_id", dev.ID,
		"state", cs.State,
		"action", action.String(),
	)

	emitted := flipped

	switch action {
	case ActionStart:
		err = e.startSession(ctx, dev, cs, sample, now, &errs)
	case ActionTick:
		err = e.tickSession(ctx, dev, st, cs, sample, now)
		if err == nil {
			var stateEmitted bool
			stateEmitted, err = e.maybeEmitStateUpdate(ctx, dev, st, cs, sample, now, &errs)
			emitted = emitted || stateEmitted
		}
	case ActionModeSwitch:
		err = e.switchMode(ctx, dev, st, cs, sample, now, &errs)
	case ActionEnd:
		err = e.endSession(ctx, dev, st, cs, sample, now, true, &errs)
	default: // ActionNone
		err = e.states.SaveState(ctx, dev.ID, StateUpdate{
			LastEquipmentState: &cs.State,
			LastSeenAt:         &now,
			LastRevision:       &sample.Revision,
		})
		if err == nil {
			var stateEmitted bool
			stateEmitted, err = e.maybeEmitStateUpdate(ctx, dev, st, cs, sample, now, &errs)
			emitted = emitted || stateEmitted
		}
	}
	if err != nil {
		// Persistence failure after a decided transition is fatal for
		// this poll cycle; dropping it silently would desynchronize
		// persisted state from reality.
		return 0, err
	}

	transition := action == ActionStart || action == ActionEnd || action == ActionModeSwitch
	suspected := st.IsRunning && cs.Active && cs.Mode == ModeFanOnly && st.LastMode != ModeFanOnly

	// Re-read is unnecessary for the hint: patch the loaded copy.
	if transition {
		st.IsRunning = cs.Active
		st.SessionSeconds = 0
	}
	return e.hint(st, transition || emitted, suspected), errors.Join(errs...)
}

// MarkStale force-flags a device unreachable from the staleness sweep.
// The atomic flip ensures that when the sweep and a poll race, only one
// of them emits the transition.
func (e *Engine) MarkStale(ctx context.Context, dev DeviceInfo) error {
	st, err := e.states.LoadState(ctx, dev.ID)
	if err != nil {
		return fmt.Errorf("loading state for %s: %w", dev.ID, err)
	}

	_, err = e.handleUnreachable(ctx, dev, st, Telemetry{}, e.now())
	return err
}

// handleUnreachable processes an explicit or staleness-driven
// unreachable observation. While a session is active, the session is
// force-ended using elapsed time up to the last tick: no tick evidence
// exists beyond that point.
//
// A state row still showing running while already unreachable means an
// earlier force-end failed before persisting; that poll also returned
// before delivering any event, so the whole end-plus-offline sequence
// is re-attempted here rather than abandoned.
func (e *Engine) handleUnreachable(ctx context.Context, dev DeviceInfo, st *DeviceRuntimeState, tel Telemetry, now time.Time) (time.Duration, error) {
	flipped, err := e.tracker.MarkUnreachable(ctx, dev.ID)
	if err != nil {
		return 0, err
	}

	st.IsReachable = false
	if !flipped && !st.IsRunning {
		// Already unreachable and idle; the transition was reported before.
		return e.hint(st, false, false), nil
	}

	var errs []error

	if st.IsRunning {
		endedAt := now
		if st.LastTickAt != nil {
			endedAt = *st.LastTickAt
		}
		total := st.SessionSeconds

		if err := e.finalizeSession(ctx, dev, st, endedAt, total, "", now); err != nil {
			return 0, err
		}

		ev := e.buildEvent(dev, EventSessionEnd, st, st.LastEquipmentState, false, tel, now, &total)
		if err := e.deliver(ctx, ev); err != nil {
			errs = append(errs, err)
		}

		e.logger.Info("session force-ended on connectivity loss",
			"device_id", dev.ID,
			"runtime_seconds", total,
		)
	}

	e.logger.Warn("device went offline", "device_id", dev.ID)
	ev := e.buildEvent(dev, EventConnectivityChange, st, st.LastEquipmentState, false, tel, now, nil)
	if err := e.deliver(ctx, ev); err != nil {
		errs = append(errs, err)
	}

	st.IsRunning = false
	return e.hint(st, true, false), errors.Join(errs...)
}

// startSession begins a new session at the current sample.
func (e *Engine) startSession(ctx context.Context, dev DeviceInfo, cs ClassifiedStatus, sample *Sample, now time.Time, errs *[]error) error {
	running := true
	var zero int64
	tempSum, humSum, count := telemetrySums(0, 0, 0, sample.Telemetry)

	err := e.states.SaveState(ctx, dev.ID, StateUpdate{
		IsRunning:          &running,
		SessionStartedAt:   &now,
		LastTickAt:         &now,
		SessionSeconds:     &zero,
		LastMode:           &cs.Mode,
		LastEquipmentState: &cs.State,
		LastSeenAt:         &now,
		LastRevision:       &sample.Revision,
		TempSum:            &tempSum,
		HumiditySum:        &humSum,
		SampleCount:        &count,
	})
	if err != nil {
		return fmt.Errorf("persisting session start for %s: %w", dev.ID, err)
	}

	e.logger.Info("session started", "device_id", dev.ID, "mode", string(cs.Mode))

	ev := &Event{
		DeviceID:       dev.ID,
		UserID:         dev.UserID,
		Type:           EventSessionStart,
		EquipmentState: cs.State,
		IsActive:       true,
		IsReachable:    true,
		Mode:           cs.Mode,
		Telemetry:      sample.Telemetry,
		ObservedAt:     now,
		EventID:        GenerateEventID(),
	}
	if err := e.deliver(ctx, ev); err != nil {
		*errs = append(*errs, err)
	}
	e.recordFingerprint(ctx, dev.ID, ev, now)

	return nil
}

// tickSession accumulates the clamped delta for an ongoing session.
// Ticks never emit.
func (e *Engine) tickSession(ctx context.Context, dev DeviceInfo, st *DeviceRuntimeState, cs ClassifiedStatus, sample *Sample, now time.Time) error {
	delta := TickDelta(now, st.LastTickAt, e.cfg.MaxAccumulate)
	seconds := st.SessionSeconds + delta
	tempSum, humSum, count := telemetrySums(st.TempSum, st.HumiditySum, st.SampleCount, sample.Telemetry)

	err := e.states.SaveState(ctx, dev.ID, StateUpdate{
		LastTickAt:         &now,
		SessionSeconds:     &seconds,
		LastEquipmentState: &cs.State,
		LastSeenAt:         &now,
		LastRevision:       &sample.Revision,
		TempSum:            &tempSum,
		HumiditySum:        &humSum,
		SampleCount:        &count,
	})
	if err != nil {
		return fmt.Errorf("persisting tick for %s: %w", dev.ID, err)
	}

	// Keep the loaded copy coherent for downstream decisions this poll.
	st.SessionSeconds = seconds
	st.LastTickAt = &now
	st.TempSum = tempSum
	st.HumiditySum = humSum
	st.SampleCount = count

	return nil
}

// endSession closes the current session: accumulate the final delta,
// persist the session row, reset state, then emit. The reset is never
// skipped because of delivery failure; a device must not stay stuck
// "running" forever.
func (e *Engine) endSession(ctx context.Context, dev DeviceInfo, st *DeviceRuntimeState, cs ClassifiedStatus, sample *Sample, now time.Time, reachable bool, errs *[]error) error {
	delta := TickDelta(now, st.LastTickAt, e.cfg.MaxAccumulate)
	total := st.SessionSeconds + delta

	if err := e.finalizeSession(ctx, dev, st, now, total, cs.State, now); err != nil {
		return err
	}

	e.logger.Info("session ended",
		"device_id", dev.ID,
		"mode", string(st.LastMode),
		"runtime_seconds", total,
	)

	ev := e.buildEvent(dev, EventSessionEnd, st, cs.State, false, sample.Telemetry, now, &total)
	ev.IsReachable = reachable
	if err := e.deliver(ctx, ev); err != nil {
		*errs = append(*errs, err)
	}
	e.recordFingerprint(ctx, dev.ID, ev, now)

	return nil
}

// switchMode ends the current accounting window and immediately starts
// a new one for the new mode, as an end+start pair. Both may emit.
func (e *Engine) switchMode(ctx context.Context, dev DeviceInfo, st *DeviceRuntimeState, cs ClassifiedStatus, sample *Sample, now time.Time, errs *[]error) error {
	delta := TickDelta(now, st.LastTickAt, e.cfg.MaxAccumulate)
	total := st.SessionSeconds + delta

	// Close the old window.
	session := e.buildSession(dev, st, now, total)
	if err := e.insertSession(ctx, session); err != nil {
		return err
	}

	endEv := e.buildEvent(dev, EventSessionEnd, st, st.LastEquipmentState, true, sample.Telemetry, now, &total)
	if err := e.deliver(ctx, endEv); err != nil {
		*errs = append(*errs, err)
	}

	e.logger.Info("mode switched",
		"device_id", dev.ID,
		"from", string(st.LastMode),
		"to", string(cs.Mode),
		"runtime_seconds", total,
	)

	// Open the new one: counter reset to 0 for the new mode.
	running := true
	var zero int64
	tempSum, humSum, count := telemetrySums(0, 0, 0, sample.Telemetry)

	err := e.states.SaveState(ctx, dev.ID, StateUpdate{
		IsRunning:          &running,
		SessionStartedAt:   &now,
		LastTickAt:         &now,
		SessionSeconds:     &zero,
		LastMode:           &cs.Mode,
		LastEquipmentState: &cs.State,
		LastSeenAt:         &now,
		LastRevision:       &sample.Revision,
		TempSum:            &tempSum,
		HumiditySum:        &humSum,
		SampleCount:        &count,
	})
	if err != nil {
		return fmt.Errorf("persisting mode switch for %s: %w", dev.ID, err)
	}

	startEv := &Event{
		DeviceID:       dev.ID,
		UserID:         dev.UserID,
		Type:           EventSessionStart,
		EquipmentState: cs.State,
		PreviousState:  st.LastEquipmentState,
		IsActive:       true,
		IsReachable:    true,
		Mode:           cs.Mode,
		Telemetry:      sample.Telemetry,
		ObservedAt:     now,
		EventID:        GenerateEventID(),
	}
	if err := e.deliver(ctx, startEv); err != nil {
		*errs = append(*errs, err)
	}
	e.recordFingerprint(ctx, dev.ID, startEv, now)

	return nil
}

// finalizeSession persists the completed session row and resets the
// state row. Duplicate session inserts are tolerated as no-ops: the
// insert-once contract was already satisfied.
func (e *Engine) finalizeSession(ctx context.Context, dev DeviceInfo, st *DeviceRuntimeState, endedAt time.Time, total int64, lastState string, now time.Time) error {
	session := e.buildSession(dev, st, endedAt, total)
	if err := e.insertSession(ctx, session); err != nil {
		return err
	}

	running := false
	var zero int64
	var zeroF float64

	update := StateUpdate{
		IsRunning:           &running,
		ClearSessionStarted: true,
		ClearLastTick:       true,
		SessionSeconds:      &zero,
		LastSeenAt:          &now,
		TempSum:             &zeroF,
		HumiditySum:         &zeroF,
		SampleCount:         &zero,
	}
	if lastState != "" {
		update.LastEquipmentState = &lastState
	}

	if err := e.states.SaveState(ctx, dev.ID, update); err != nil {
		return fmt.Errorf("resetting state for %s: %w", dev.ID, err)
	}

	st.IsRunning = false
	st.SessionSeconds = 0
	return nil
}

func (e *Engine) insertSession(ctx context.Context, session *Session) error {
	err := e.sessions.InsertSession(ctx, session)
	if errors.Is(err, ErrDuplicateSession) {
		e.logger.Warn("duplicate session insert ignored",
			"device_id", session.DeviceID,
			"started_at", session.StartedAt,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("inserting session for %s: %w", session.DeviceID, err)
	}
	return nil
}

// buildSession assembles the append-only session row from accumulated state.
func (e *Engine) buildSession(dev DeviceInfo, st *DeviceRuntimeState, endedAt time.Time, total int64) *Session {
	startedAt := endedAt
	if st.SessionStartedAt != nil {
		startedAt = *st.SessionStartedAt
	}

	session := &Session{
		DeviceID:       dev.ID,
		UserID:         dev.UserID,
		StartedAt:      startedAt,
		EndedAt:        endedAt,
		RuntimeSeconds: total,
		Mode:           st.LastMode,
		EquipmentType:  dev.EquipmentType,
	}

	if st.SampleCount > 0 {
		avgTemp := st.TempSum / float64(st.SampleCount)
		avgHum := st.HumiditySum / float64(st.SampleCount)
		session.AvgTemperature = &avgTemp
		session.AvgHumidity = &avgHum
	}

	return session
}

// maybeEmitStateUpdate runs the steady-state dedup decision and emits a
// STATE_UPDATE when warranted.
func (e *Engine) maybeEmitStateUpdate(ctx context.Context, dev DeviceInfo, st *DeviceRuntimeState, cs ClassifiedStatus, sample *Sample, now time.Time, errs *[]error) (bool, error) {
	ev := &Event{
		DeviceID:       dev.ID,
		UserID:         dev.UserID,
		Type:           EventStateUpdate,
		EquipmentState: cs.State,
		PreviousState:  st.LastEquipmentState,
		IsActive:       cs.Active,
		IsReachable:    true,
		Mode:           cs.Mode,
		Telemetry:      sample.Telemetry,
		ObservedAt:     now,
		EventID:        GenerateEventID(),
	}

	last, err := e.fingerprints.LoadFingerprint(ctx, dev.ID)
	if err != nil {
		return false, fmt.Errorf("loading fingerprint for %s: %w", dev.ID, err)
	}

	candidate := Fingerprint(ev)
	if !e.decider.ShouldEmitStateUpdate(last, candidate, sample.Telemetry.Temperature, now) {
		return false, nil
	}

	if err := e.deliver(ctx, ev); err != nil {
		*errs = append(*errs, err)
	}
	e.recordFingerprint(ctx, dev.ID, ev, now)

	return true, nil
}

// recordFingerprint stores the hash of an emitted payload. Failures are
// logged, not fatal: the worst case is one redundant re-emission, which
// consumers already tolerate via event IDs.
func (e *Engine) recordFingerprint(ctx context.Context, deviceID string, ev *Event, now time.Time) {
	fp := &EmittedFingerprint{
		DeviceID:        deviceID,
		Fingerprint:     Fingerprint(ev),
		EmittedAt:       now,
		LastTemperature: ev.Telemetry.Temperature,
	}
	if err := e.fingerprints.SaveFingerprint(ctx, fp); err != nil {
		e.logger.Error("saving fingerprint failed", "device_id", deviceID, "error", err)
	}
}

// buildEvent assembles an event payload around the current state.
func (e *Engine) buildEvent(dev DeviceInfo, t EventType, st *DeviceRuntimeState, state string, active bool, tel Telemetry, now time.Time, runtimeSeconds *int64) *Event {
	return &Event{
		DeviceID:       dev.ID,
		UserID:         dev.UserID,
		Type:           t,
		EquipmentState: state,
		PreviousState:  st.LastEquipmentState,
		IsActive:       active,
		IsReachable:    st.IsReachable,
		Mode:           st.LastMode,
		RuntimeSeconds: runtimeSeconds,
		Telemetry:      tel,
		ObservedAt:     now,
		EventID:        GenerateEventID(),
	}
}

// deliver pushes one event to the sink, wrapping failures in
// ErrDeliveryFailed for the caller's retry policy.
func (e *Engine) deliver(ctx context.Context, ev *Event) error {
	if err := e.sink.DeliverEvent(ctx, ev); err != nil {
		e.logger.Error("event delivery failed",
			"device_id", ev.DeviceID,
			"event_type", string(ev.Type),
			"error", err,
		)
		return fmt.Errorf("%w: %s for %s: %w", ErrDeliveryFailed, ev.Type, ev.DeviceID, err)
	}
	return nil
}

// hint computes the next-poll recommendation for the (possibly patched)
// state copy.
func (e *Engine) hint(st *DeviceRuntimeState, changedNow, suspectedTransition bool) time.Duration {
	sinceChange := time.Duration(-1)
	if changedNow {
		sinceChange = 0
	}
	return NextPollDelay(st, sinceChange, suspectedTransition, e.cfg.Scheduler)
}

// telemetrySums folds one sample's readings into the running session
// accumulators. Samples without a temperature reading do not advance
// the count, so sparse telemetry does not drag averages toward zero.
func telemetrySums(tempSum, humSum float64, count int64, tel Telemetry) (float64, float64, int64) {
	if tel.Temperature == nil {
		return tempSum, humSum, count
	}
	tempSum += *tel.Temperature
	if tel.Humidity != nil {
		humSum += *tel.Humidity
	}
	return tempSum, humSum, count + 1
}
