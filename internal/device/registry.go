package device

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// StateSeeder creates the initial runtime state row for a newly
// registered device. Implemented by the runtime state repository.
type StateSeeder interface {
	EnsureState(ctx context.Context, deviceID string) error
}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	seeder  StateSeeder
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
// The seeder may be nil, in which case no runtime state is created on
// registration.
func NewRegistry(repo Repository, seeder StateSeeder) *Registry {
	return &Registry{
		repo:   repo,
		seeder: seeder,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with copies
	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.Copy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.Copy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups
	r.cacheMu.Lock()
	r.cache[id] = device.Copy()
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Return from cache if populated
	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.Copy())
		}
		return devices, nil
	}

	// Fall back to repository
	return r.repo.List(ctx)
}

// GetDevicesByUser retrieves all devices owned by a specific user.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) GetDevicesByUser(ctx context.Context, userID string) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Filter from cache if populated
	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.UserID == userID {
				devices = append(devices, *d.Copy())
			}
		}
		return devices, nil
	}

	return r.repo.ListByUser(ctx, userID)
}

// ListEnabledDevices retrieves all devices the poller should sample.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) ListEnabledDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		var devices []Device
		for _, d := range r.cache {
			if d.Enabled {
				devices = append(devices, *d.Copy())
			}
		}
		return devices, nil
	}

	return r.repo.ListEnabled(ctx)
}

// RegisterDevice creates a new device and seeds its runtime state row.
// It validates the device, generates an ID if needed, and persists it.
func (r *Registry) RegisterDevice(ctx context.Context, device *Device) error {
	// Generate ID if not provided
	if device.ID == "" {
		device.ID = GenerateID()
	}

	// Validate
	if err := ValidateDevice(device); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	// Seed the runtime state row so the engine has a baseline before
	// the first sample arrives.
	if r.seeder != nil {
		if err := r.seeder.EnsureState(ctx, device.ID); err != nil {
			return fmt.Errorf("seeding runtime state: %w", err)
		}
	}

	// Update cache (store a copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.Copy()
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "id", device.ID, "name", device.Name)
	return nil
}

// UpdateDevice updates an existing device.
// It validates the device and persists the changes.
func (r *Registry) UpdateDevice(ctx context.Context, device *Device) error {
	// Validate
	if err := ValidateDevice(device); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}

	// Update cache (store a copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.Copy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", device.ID, "name", device.Name)
	return nil
}

// RemoveDevice removes a device. Runtime state, sessions and emitted
// fingerprints are removed by the database's foreign key cascade.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device removed", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices    int
	EnabledDevices  int
	ByEquipmentType map[EquipmentType]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices:    len(r.cache),
		ByEquipmentType: make(map[EquipmentType]int),
	}

	for _, d := range r.cache {
		if d.Enabled {
			stats.EnabledDevices++
		}
		stats.ByEquipmentType[d.EquipmentType]++
	}

	return stats
}
