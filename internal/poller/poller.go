package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmcalloway/runtrack-core/internal/device"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/config"
	"github.com/jmcalloway/runtrack-core/internal/runtime"
)

// Logger defines the logging interface used by the Poller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceLister supplies the set of devices eligible for polling.
type DeviceLister interface {
	ListEnabled(ctx context.Context) ([]device.Device, error)
}

// Engine is the per-device poll entry point. Implemented by
// runtime.Engine.
type Engine interface {
	Poll(ctx context.Context, dev runtime.DeviceInfo) (time.Duration, error)
	MarkStale(ctx context.Context, dev runtime.DeviceInfo) error
}

// StaleLister finds devices that stopped reporting. Implemented by the
// runtime state repository.
type StaleLister interface {
	ListStaleDevices(ctx context.Context, olderThan time.Time) ([]string, error)
}

// Poller drives the engine: a scheduler loop polls due devices through
// a bounded worker pool, and an independent sweep loop force-flags
// devices that have gone silent. Each device's next-due time comes from
// the engine's adaptive hint.
type Poller struct {
	devices DeviceLister
	engine  Engine
	states  StaleLister

	workers            int
	tick               time.Duration
	sweepInterval      time.Duration
	stalenessThreshold time.Duration

	logger Logger

	mu      sync.Mutex
	nextDue map[string]time.Time

	// now is overridable in tests.
	now func() time.Time
}

// New creates a poller from configuration.
func New(devices DeviceLister, engine Engine, states StaleLister, cfg config.PollerConfig) *Poller {
	return &Poller{
		devices:            devices,
		engine:             engine,
		states:             states,
		workers:            cfg.Workers,
		tick:               time.Duration(cfg.Tick) * time.Second,
		sweepInterval:      time.Duration(cfg.StalenessSweepInterval) * time.Second,
		stalenessThreshold: time.Duration(cfg.StalenessThreshold) * time.Second,
		logger:             noopLogger{},
		nextDue:            make(map[string]time.Time),
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// Run blocks until the context is cancelled, driving both the scheduler
// loop and the staleness sweep.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller starting",
		"workers", p.workers,
		"tick", p.tick.String(),
		"staleness_threshold", p.stalenessThreshold.String(),
	)

	go p.sweepLoop(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := p.pollDue(ctx); err != nil {
				p.logger.Error("poll cycle failed", "error", err)
			}
		}
	}
}

// pollDue polls every device whose next-due time has arrived, bounded
// to the configured worker count. Failures are per-device: one device's
// error never blocks the rest of the batch.
func (p *Poller) pollDue(ctx context.Context) error {
	devices, err := p.devices.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	now := p.now()
	due := make([]device.Device, 0, len(devices))

	p.mu.Lock()
	for _, d := range devices {
		at, known := p.nextDue[d.ID]
		if !known || !at.After(now) {
			due = append(due, d)
		}
	}
	p.mu.Unlock()

	if len(due) == 0 {
		return nil
	}

	p.logger.Debug("polling due devices", "due", len(due), "total", len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, d := range due {
		d := d
		g.Go(func() error {
			p.pollOne(gctx, d)
			return nil
		})
	}

	return g.Wait()
}

// pollOne runs one device poll and reschedules it from the engine's
// hint, or after one tick on failure.
func (p *Poller) pollOne(ctx context.Context, d device.Device) {
	info := runtime.DeviceInfo{
		ID:            d.ID,
		UserID:        d.UserID,
		EquipmentType: string(d.EquipmentType),
	}

	delay, err := p.engine.Poll(ctx, info)
	if err != nil {
		p.logger.Error("device poll failed", "device_id", d.ID, "error", err)
		delay = p.tick
	}
	if delay <= 0 {
		delay = p.tick
	}

	p.mu.Lock()
	p.nextDue[d.ID] = p.now().Add(delay)
	p.mu.Unlock()
}

// sweepLoop periodically flags devices that stopped reporting.
func (p *Poller) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.sweep(ctx); err != nil {
				p.logger.Error("staleness sweep failed", "error", err)
			}
		}
	}
}

// sweep marks every silent device unreachable. The engine's atomic flip
// makes this safe to race against in-flight polls for the same device.
func (p *Poller) sweep(ctx context.Context) error {
	cutoff := p.now().Add(-p.stalenessThreshold)

	ids, err := p.states.ListStaleDevices(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing stale devices: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	devices, err := p.devices.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	byID := make(map[string]device.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			// Disabled or removed since the state row was written.
			continue
		}

		info := runtime.DeviceInfo{
			ID:            d.ID,
			UserID:        d.UserID,
			EquipmentType: string(d.EquipmentType),
		}
		if err := p.engine.MarkStale(ctx, info); err != nil {
			p.logger.Error("marking device stale failed", "device_id", id, "error", err)
			continue
		}
		p.logger.Warn("device marked stale", "device_id", id)
	}

	return nil
}
