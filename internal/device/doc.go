// Package device provides the Device Registry for Runtrack Core.
//
// The Device Registry is the catalogue of climate-control devices whose
// runtime and connectivity the engine tracks. It manages device lifecycle
// and provides query operations for the REST API and the poller.
//
// # Key Types
//
//   - Device: A registered climate-control device
//   - EquipmentType: The kind of equipment behind it (furnace, heat_pump, ac, boiler)
//   - Registry: Cached, thread-safe device management on top of a Repository
//
// # Usage
//
//	// Create repository and registry
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo, stateRepo)
//	registry.SetLogger(log)
//
//	// Load devices into cache on startup
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Register a new device
//	dev := &device.Device{
//	    UserID:        "user-123",
//	    Name:          "Upstairs Thermostat",
//	    EquipmentType: device.EquipmentHeatPump,
//	    Enabled:       true,
//	}
//	if err := registry.RegisterDevice(ctx, dev); err != nil {
//	    return err
//	}
//
//	// Query devices
//	devices, _ := registry.GetDevicesByUser(ctx, "user-123")
//	dev, _ := registry.GetDevice(ctx, "device-uuid")
//
// Registration seeds an initial runtime state row via the StateSeeder so
// the engine has a baseline before the first sample arrives. Removal
// relies on the database's foreign key cascade to drop runtime state,
// sessions and emitted fingerprints with the device.
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex. The Repository implementation must also be thread-safe.
package device
