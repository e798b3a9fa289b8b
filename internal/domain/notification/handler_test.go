package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/auth"
)

func authedRequest(method, target string, uid uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: uid, Role: auth.RoleDoctor}))
}

func TestHandler_Routes(t *testing.T) {
	svc := NewService(newMockRepo(), nil, zerolog.Nop())
	e := echo.New()
	uid := uuid.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), auth.Identity{UserID: uid, Role: auth.RoleDoctor})))
			return next(c)
		}
	})
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(api)

	n, _ := svc.Create(context.Background(), uid, "t", "m")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "{\"count\":1}\n" {
		t.Errorf("unexpected unread-count response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/"+n.ID.String()+"/read", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 marking read, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unreadOnly=true", nil))
	var items []Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no unread notifications, got %d", len(items))
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/notifications/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting unknown notification, got %d", rec.Code)
	}
}

func TestHandler_RequiresIdentity(t *testing.T) {
	h := NewHandler(NewService(newMockRepo(), nil, zerolog.Nop()), zerolog.Nop())
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := h.List(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_MarkAsRead_InvalidID(t *testing.T) {
	h := NewHandler(NewService(newMockRepo(), nil, zerolog.Nop()), zerolog.Nop())
	c := echo.New().NewContext(authedRequest(http.MethodPatch, "/", uuid.New()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("bad")
	err := h.MarkAsRead(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
