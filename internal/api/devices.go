package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcalloway/runtrack-core/internal/device"
	"github.com/jmcalloway/runtrack-core/internal/runtime"
)

// handleListDevices returns all registered devices, optionally filtered
// by owner via the user_id query parameter.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if userID := r.URL.Query().Get("user_id"); userID != "" {
		devices, err := s.registry.GetDevicesByUser(ctx, userID)
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices, err := s.registry.ListDevices(ctx)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new device. The registry generates the
// ID when the body omits one and seeds the runtime state row.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.RegisterDevice(r.Context(), &dev); err != nil {
		if isValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		if errors.Is(err, device.ErrDeviceExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device already exists")
			return
		}
		writeInternalError(w, "failed to create device")
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice partially updates a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	// Decode partial update onto existing device
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.registry.UpdateDevice(r.Context(), existing); err != nil {
		if isValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice removes a device. Runtime state, sessions and
// fingerprints go with it via the schema's cascade.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.RemoveDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns device registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_devices":     stats.TotalDevices,
		"enabled_devices":   stats.EnabledDevices,
		"by_equipment_type": stats.ByEquipmentType,
	})
}

// handleGetDeviceState returns the engine's current runtime view of a
// device. Internal accumulator columns are not exposed.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	st, err := s.states.LoadState(r.Context(), id)
	if err != nil {
		if errors.Is(err, runtime.ErrStateNotFound) {
			writeNotFound(w, "no runtime state for device")
			return
		}
		writeInternalError(w, "failed to load device state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":            st.DeviceID,
		"is_running":           st.IsRunning,
		"session_started_at":   st.SessionStartedAt,
		"session_seconds":      st.SessionSeconds,
		"last_mode":            st.LastMode,
		"last_equipment_state": st.LastEquipmentState,
		"is_reachable":         st.IsReachable,
		"last_seen_at":         st.LastSeenAt,
		"updated_at":           st.UpdatedAt,
	})
}

// Session listing limits.
const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// handleListDeviceSessions returns completed runtime sessions for a
// device, newest first. The limit query parameter caps the page size.
func (s *Server) handleListDeviceSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxSessionLimit)
	}

	sessions, err := s.sessions.ListSessions(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// isValidationError checks whether an error is a device validation error.
// ValidateDevice wraps several sentinel errors, so all are checked.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidUserID) ||
		errors.Is(err, device.ErrInvalidEquipmentType)
}
