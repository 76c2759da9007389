package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jmcalloway/runtrack-core/internal/auth"
	"github.com/jmcalloway/runtrack-core/internal/device"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/config"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/logging"
	"github.com/jmcalloway/runtrack-core/internal/runtime"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			display_name  TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE TABLE devices (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			name           TEXT NOT NULL,
			equipment_type TEXT NOT NULL,
			enabled        INTEGER NOT NULL DEFAULT 1,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);
		CREATE TABLE runtime_state (
			device_id            TEXT PRIMARY KEY,
			is_running           INTEGER NOT NULL DEFAULT 0,
			session_started_at   TEXT,
			last_tick_at         TEXT,
			session_seconds      INTEGER NOT NULL DEFAULT 0,
			last_mode            TEXT,
			last_equipment_state TEXT,
			is_reachable         INTEGER NOT NULL DEFAULT 1,
			last_seen_at         TEXT,
			last_revision        TEXT,
			temp_sum             REAL NOT NULL DEFAULT 0,
			humidity_sum         REAL NOT NULL DEFAULT 0,
			sample_count         INTEGER NOT NULL DEFAULT 0,
			updated_at           TEXT NOT NULL
		);
		CREATE TABLE sessions (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id       TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			started_at      TEXT NOT NULL,
			ended_at        TEXT NOT NULL,
			runtime_seconds INTEGER NOT NULL,
			mode            TEXT NOT NULL,
			equipment_type  TEXT NOT NULL,
			avg_temperature REAL,
			avg_humidity    REAL,
			created_at      TEXT NOT NULL,
			UNIQUE (device_id, started_at)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testEnv bundles the server with the repositories backing it so tests
// can seed data directly.
type testEnv struct {
	server   *Server
	router   http.Handler
	users    auth.UserRepository
	registry *device.Registry
	sessions *runtime.SQLiteSessionRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	ctx := context.Background()

	users := auth.NewUserRepository(db)
	seedUser(t, users, "admin", "admin-pass", auth.RoleAdmin)
	seedUser(t, users, "viewer", "viewer-pass", auth.RoleViewer)

	states := runtime.NewSQLiteStateRepository(db)
	sessions := runtime.NewSQLiteSessionRepository(db)
	registry := device.NewRegistry(device.NewSQLiteRepository(db), states)
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("refresh cache: %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{},
		WS:     config.WebSocketConfig{},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         "test-secret",
				AccessTokenTTL: 60,
				Issuer:         "runtrack-test",
			},
		},
		Logger:   logging.Default(),
		Registry: registry,
		Users:    users,
		States:   states,
		Sessions: sessions,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.hub = NewHub(config.WebSocketConfig{}, srv.logger)

	return &testEnv{
		server:   srv,
		router:   srv.buildRouter(),
		users:    users,
		registry: registry,
		sessions: sessions,
	}
}

func seedUser(t *testing.T, users auth.UserRepository, username, password string, role auth.Role) {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	err = users.Create(context.Background(), &auth.User{
		ID:           username + "-id",
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
}

// do runs a request through the router and decodes the JSON response body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, decoded
}

// login authenticates through the API and returns the access token.
func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d, body %v", username, status, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatal("login returned empty access token")
	}
	return token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	token := env.login(t, "admin", "admin-pass")
	if token == "" {
		t.Fatal("expected token")
	}

	status, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", status)
	}

	status, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "whatever",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("unknown user: status = %d, want 401", status)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/api/v1/devices", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", status)
	}

	status, _ = env.do(t, http.MethodGet, "/api/v1/devices", "not-a-jwt", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", status)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "viewer", "viewer-pass")

	status, body := env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["username"] != "viewer" || body["role"] != "viewer" {
		t.Errorf("unexpected user body: %v", body)
	}
	if _, leaked := body["password_hash"]; leaked {
		t.Error("password hash leaked in response")
	}
}

func TestDeviceCRUD(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin", "admin-pass")
	viewer := env.login(t, "viewer", "viewer-pass")

	// Viewer cannot create
	status, _ := env.do(t, http.MethodPost, "/api/v1/devices", viewer, map[string]any{
		"user_id": "user-1", "name": "Hallway", "equipment_type": "heat_pump",
	})
	if status != http.StatusForbidden {
		t.Fatalf("viewer create: status = %d, want 403", status)
	}

	// Admin creates
	status, body := env.do(t, http.MethodPost, "/api/v1/devices", admin, map[string]any{
		"user_id": "user-1", "name": "Hallway", "equipment_type": "heat_pump", "enabled": true,
	})
	if status != http.StatusCreated {
		t.Fatalf("create: status = %d, body %v", status, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("created device has no id")
	}

	// Any authenticated user can read
	status, body = env.do(t, http.MethodGet, "/api/v1/devices", viewer, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status = %d", status)
	}
	if count, _ := body["count"].(float64); count != 1 {
		t.Errorf("list count = %v, want 1", body["count"])
	}

	status, body = env.do(t, http.MethodGet, "/api/v1/devices/"+id, viewer, nil)
	if status != http.StatusOK || body["name"] != "Hallway" {
		t.Errorf("get: status = %d, body %v", status, body)
	}

	// Patch (admin only)
	status, _ = env.do(t, http.MethodPatch, "/api/v1/devices/"+id, viewer, map[string]any{"name": "Renamed"})
	if status != http.StatusForbidden {
		t.Errorf("viewer patch: status = %d, want 403", status)
	}
	status, body = env.do(t, http.MethodPatch, "/api/v1/devices/"+id, admin, map[string]any{"name": "Renamed"})
	if status != http.StatusOK || body["name"] != "Renamed" {
		t.Errorf("patch: status = %d, body %v", status, body)
	}

	// Invalid equipment type rejected
	status, _ = env.do(t, http.MethodPost, "/api/v1/devices", admin, map[string]any{
		"user_id": "user-1", "name": "Bad", "equipment_type": "toaster",
	})
	if status != http.StatusBadRequest {
		t.Errorf("invalid equipment type: status = %d, want 400", status)
	}

	// Delete (admin only), then 404
	status, _ = env.do(t, http.MethodDelete, "/api/v1/devices/"+id, viewer, nil)
	if status != http.StatusForbidden {
		t.Errorf("viewer delete: status = %d, want 403", status)
	}
	status, _ = env.do(t, http.MethodDelete, "/api/v1/devices/"+id, admin, nil)
	if status != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", status)
	}
	status, _ = env.do(t, http.MethodGet, "/api/v1/devices/"+id, admin, nil)
	if status != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", status)
	}
}

func TestDeviceState(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin", "admin-pass")

	_, body := env.do(t, http.MethodPost, "/api/v1/devices", admin, map[string]any{
		"user_id": "user-1", "name": "Den", "equipment_type": "furnace", "enabled": true,
	})
	id, _ := body["id"].(string)

	// Registration seeds the runtime state row, so the read works
	// before the first poll.
	status, body := env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/state", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("state: status = %d, body %v", status, body)
	}
	if body["is_running"] != false {
		t.Errorf("is_running = %v, want false", body["is_running"])
	}
	if body["is_reachable"] != true {
		t.Errorf("is_reachable = %v, want true", body["is_reachable"])
	}

	status, _ = env.do(t, http.MethodGet, "/api/v1/devices/missing/state", admin, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown device state: status = %d, want 404", status)
	}
}

func TestDeviceSessions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin", "admin-pass")

	_, body := env.do(t, http.MethodPost, "/api/v1/devices", admin, map[string]any{
		"user_id": "user-1", "name": "Loft", "equipment_type": "ac", "enabled": true,
	})
	id, _ := body["id"].(string)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := env.sessions.InsertSession(context.Background(), &runtime.Session{
		DeviceID:       id,
		UserID:         "user-1",
		StartedAt:      started,
		EndedAt:        started.Add(10 * time.Minute),
		RuntimeSeconds: 600,
		Mode:           runtime.ModeCooling,
		EquipmentType:  "ac",
	})
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}

	status, body := env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/sessions", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("sessions: status = %d, body %v", status, body)
	}
	if count, _ := body["count"].(float64); count != 1 {
		t.Errorf("session count = %v, want 1", body["count"])
	}

	status, _ = env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/sessions?limit=abc", admin, nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", status)
	}
}

func TestDeviceStats(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin", "admin-pass")

	env.do(t, http.MethodPost, "/api/v1/devices", admin, map[string]any{
		"user_id": "user-1", "name": "One", "equipment_type": "boiler", "enabled": true,
	})

	status, body := env.do(t, http.MethodGet, "/api/v1/devices/stats", admin, nil)
	if status != http.StatusOK {
		t.Fatalf("stats: status = %d", status)
	}
	if total, _ := body["total_devices"].(float64); total != 1 {
		t.Errorf("total_devices = %v, want 1", body["total_devices"])
	}
}

func TestWSTicket(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin", "admin-pass")

	status, body := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil)
	if status != http.StatusOK {
		t.Fatalf("ws-ticket: status = %d", status)
	}
	ticket, _ := body["ticket"].(string)
	if ticket == "" {
		t.Fatal("empty ticket")
	}

	entry, ok := env.server.validateTicket(ticket)
	if !ok {
		t.Fatal("ticket should validate once")
	}
	if entry.userID != "admin-id" || entry.role != auth.RoleAdmin {
		t.Errorf("ticket identity = %s/%s, want admin-id/admin", entry.userID, entry.role)
	}

	// Single use
	if _, ok := env.server.validateTicket(ticket); ok {
		t.Error("ticket validated twice")
	}

	// Unauthenticated requests cannot mint tickets
	status, _ = env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("no token ws-ticket: status = %d, want 401", status)
	}
}
