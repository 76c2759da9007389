package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmcalloway/runtrack-core/internal/device"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/config"
	"github.com/jmcalloway/runtrack-core/internal/runtime"
)

type mockLister struct {
	devices []device.Device
	err     error
}

func (m *mockLister) ListEnabled(_ context.Context) ([]device.Device, error) {
	return m.devices, m.err
}

type mockEngine struct {
	mu          sync.Mutex
	polled      []string
	staled      []string
	delay       time.Duration
	pollErr     error
	inFlight    int
	maxInFlight int
}

func (m *mockEngine) Poll(_ context.Context, dev runtime.DeviceInfo) (time.Duration, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.polled = append(m.polled, dev.ID)
	m.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()

	return m.delay, m.pollErr
}

func (m *mockEngine) MarkStale(_ context.Context, dev runtime.DeviceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staled = append(m.staled, dev.ID)
	return nil
}

type mockStaleLister struct {
	ids []string
	err error
}

func (m *mockStaleLister) ListStaleDevices(_ context.Context, _ time.Time) ([]string, error) {
	return m.ids, m.err
}

func testDevices(ids ...string) []device.Device {
	out := make([]device.Device, 0, len(ids))
	for _, id := range ids {
		out = append(out, device.Device{
			ID:            id,
			UserID:        "user-1",
			EquipmentType: device.EquipmentHeatPump,
			Enabled:       true,
		})
	}
	return out
}

func newTestPoller(lister *mockLister, engine *mockEngine, stale *mockStaleLister) *Poller {
	return New(lister, engine, stale, config.PollerConfig{
		Workers:                2,
		Tick:                   30,
		StalenessSweepInterval: 60,
		StalenessThreshold:     900,
	})
}

func TestPollDue_AllNewDevicesPolled(t *testing.T) {
	engine := &mockEngine{delay: 5 * time.Minute}
	p := newTestPoller(&mockLister{devices: testDevices("a", "b", "c")}, engine, &mockStaleLister{})

	if err := p.pollDue(context.Background()); err != nil {
		t.Fatalf("pollDue: %v", err)
	}

	if len(engine.polled) != 3 {
		t.Errorf("polled %d devices, want 3", len(engine.polled))
	}
}

func TestPollDue_RespectsNextDue(t *testing.T) {
	engine := &mockEngine{delay: 5 * time.Minute}
	p := newTestPoller(&mockLister{devices: testDevices("a", "b")}, engine, &mockStaleLister{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	if err := p.pollDue(context.Background()); err != nil {
		t.Fatalf("pollDue: %v", err)
	}
	if len(engine.polled) != 2 {
		t.Fatalf("first cycle polled %d, want 2", len(engine.polled))
	}

	// One tick later neither device is due yet.
	now = now.Add(30 * time.Second)
	if err := p.pollDue(context.Background()); err != nil {
		t.Fatalf("pollDue: %v", err)
	}
	if len(engine.polled) != 2 {
		t.Errorf("second cycle polled %d more, want 0", len(engine.polled)-2)
	}

	// Past the hint both are due again.
	now = now.Add(5 * time.Minute)
	if err := p.pollDue(context.Background()); err != nil {
		t.Fatalf("pollDue: %v", err)
	}
	if len(engine.polled) != 4 {
		t.Errorf("third cycle total = %d, want 4", len(engine.polled))
	}
}

func TestPollDue_BoundedConcurrency(t *testing.T) {
	engine := &mockEngine{delay: time.Minute}
	p := newTestPoller(&mockLister{devices: testDevices("a", "b", "c", "d", "e", "f")}, engine, &mockStaleLister{})

	if err := p.pollDue(context.Background()); err != nil {
		t.Fatalf("pollDue: %v", err)
	}

	if engine.maxInFlight > 2 {
		t.Errorf("max in-flight polls = %d, want <= 2", engine.maxInFlight)
	}
	if len(engine.polled) != 6 {
		t.Errorf("polled %d devices, want 6", len(engine.polled))
	}
}

func TestPollDue_FailureReschedulesAfterTick(t *testing.T) {
	engine := &mockEngine{pollErr: errors.New("provider down")}
	p := newTestPoller(&mockLister{devices: testDevices("a")}, engine, &mockStaleLister{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	if err := p.pollDue(context.Background()); err != nil {
		t.Fatalf("pollDue: %v", err)
	}

	p.mu.Lock()
	due := p.nextDue["a"]
	p.mu.Unlock()

	if !due.Equal(now.Add(30 * time.Second)) {
		t.Errorf("next due = %v, want one tick later %v", due, now.Add(30*time.Second))
	}
}

func TestSweep(t *testing.T) {
	engine := &mockEngine{}
	lister := &mockLister{devices: testDevices("a", "b")}
	stale := &mockStaleLister{ids: []string{"a", "removed"}}
	p := newTestPoller(lister, engine, stale)

	if err := p.sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(engine.staled) != 1 || engine.staled[0] != "a" {
		t.Errorf("staled = %v, want [a] (unknown ids skipped)", engine.staled)
	}
}

func TestSweep_ListError(t *testing.T) {
	p := newTestPoller(&mockLister{}, &mockEngine{}, &mockStaleLister{err: errors.New("db closed")})

	if err := p.sweep(context.Background()); err == nil {
		t.Error("expected error from sweep")
	}
}
