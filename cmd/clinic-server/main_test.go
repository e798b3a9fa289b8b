package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/config"
	"github.com/clinicdesk/clinic/internal/domain/identity"
	"github.com/clinicdesk/clinic/internal/domain/scheduling"
	"github.com/clinicdesk/clinic/internal/platform/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "test",
		JWTSecret:          testSecret,
		JWTIssuer:          "clinic-test",
		JWTAccessTTL:       15 * time.Minute,
		JWTRefreshTTL:      time.Hour,
		CORSOrigins:        []string{"http://localhost:3000"},
		RequestTimeout:     5 * time.Second,
		ClinicTimezone:     "UTC",
		OverlapMode:        config.OverlapStartInWindow,
		EnforceTransitions: true,
		BookingLockTTL:     time.Second,
		DashboardCacheTTL:  time.Minute,
	}
}

func newTestApp(t *testing.T) (http.Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e, err := newApp(testConfig(), zerolog.Nop(), mock, rdb)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return e, mock
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tm := auth.NewTokenManager(testSecret, "clinic-test", time.Minute, time.Hour)
	pair, err := tm.GenerateTokenPair(auth.Identity{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + pair.AccessToken
}

func TestApp_Health(t *testing.T) {
	app, _ := newTestApp(t)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestApp_ProtectedRoutesRequireToken(t *testing.T) {
	app, _ := newTestApp(t)
	for _, path := range []string{"/api/v1/appointments", "/api/v1/patients", "/api/v1/dashboard/overview", "/api/v1/settings", "/api/v1/auth/me"} {
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
			continue
		}
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error.Code != "unauthorized" {
			t.Errorf("%s: expected error envelope, got %s", path, rec.Body.String())
		}
	}
}

func TestApp_AuthenticatedRequest(t *testing.T) {
	app, mock := newTestApp(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications WHERE user_id = \$1 AND NOT is_read`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil)
	req.Header.Set("Authorization", bearer(t, auth.RoleDoctor))
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":2`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApp_SettingsWriteRequiresAdmin(t *testing.T) {
	app, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader(`{"clinicName":"x"}`))
	req.Header.Set("Authorization", bearer(t, auth.RoleReceptionist))
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestApp_Metrics(t *testing.T) {
	app, _ := newTestApp(t)
	app.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_http_requests_total") {
		t.Error("expected http request counter in metrics output")
	}
}

func TestNewApp_RejectsBadOverlapMode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	cfg := testConfig()
	cfg.OverlapMode = "sometimes"
	if _, err := newApp(cfg, zerolog.Nop(), mock, nil); err == nil {
		t.Error("expected error for unknown overlap mode")
	}
}

func TestTranslateLookup(t *testing.T) {
	err := translateLookup(fmt.Errorf("lookup: %w", identity.ErrNotFound))
	if !errors.Is(err, scheduling.ErrNotFound) {
		t.Errorf("expected scheduling.ErrNotFound, got %v", err)
	}
	other := errors.New("boom")
	if got := translateLookup(other); got != other {
		t.Errorf("expected passthrough, got %v", got)
	}
}

func TestJWTSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	if _, err := jwtSecret(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error outside development")
	}

	cfg.Env = "development"
	a, err := jwtSecret(cfg, zerolog.Nop())
	if err != nil || len(a) != 64 {
		t.Fatalf("expected random 32-byte hex secret, got %q (%v)", a, err)
	}
	b, _ := jwtSecret(cfg, zerolog.Nop())
	if a == b {
		t.Error("expected distinct development secrets")
	}
}

func TestNewLogger_Level(t *testing.T) {
	if got := newLogger("production", "warn").GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("expected warn, got %s", got)
	}
	if got := newLogger("production", "bogus").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", got)
	}
}

func TestSeed_SkipsWhenUsersExist(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	if err := seed(context.Background(), mock, "pw123456", zerolog.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
