// Package settings stores the clinic's free-form configuration blob
// (display name, colours and similar front-end preferences).
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/auth"
	"github.com/clinicdesk/clinic/internal/platform/db"
)

type Settings struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

type Store interface {
	Get(ctx context.Context) (*Settings, error)
	Put(ctx context.Context, data json.RawMessage) (*Settings, error)
}

type storePG struct{ q db.Querier }

func NewStorePG(q db.Querier) Store { return &storePG{q: q} }

// Get returns an empty object until settings are first saved.
func (s *storePG) Get(ctx context.Context) (*Settings, error) {
	var out Settings
	var data []byte
	var updated time.Time
	err := db.Conn(ctx, s.q).QueryRow(ctx,
		`SELECT data, updated_at FROM clinic_settings WHERE id = 1`).Scan(&data, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Settings{Data: json.RawMessage(`{}`)}, nil
	}
	if err != nil {
		return nil, err
	}
	out.Data = data
	out.UpdatedAt = &updated
	return &out, nil
}

func (s *storePG) Put(ctx context.Context, data json.RawMessage) (*Settings, error) {
	var updated time.Time
	err := db.Conn(ctx, s.q).QueryRow(ctx, `
		INSERT INTO clinic_settings (id, data, updated_at) VALUES (1, $1::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
		RETURNING updated_at`, string(data)).Scan(&updated)
	if err != nil {
		return nil, err
	}
	return &Settings{Data: data, UpdatedAt: &updated}, nil
}

type Handler struct {
	store  Store
	logger zerolog.Logger
}

func NewHandler(store Store, logger zerolog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/settings")
	g.GET("", h.Get, auth.RequireStaff())
	g.PUT("", h.Put, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Get(c echo.Context) error {
	s, err := h.store.Get(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("load settings")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, s)
}

// Put replaces the whole blob; the body must be a JSON object.
func (h *Handler) Put(c echo.Context) error {
	var body map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil || body == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "settings must be a JSON object")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "settings must be a JSON object")
	}
	s, err := h.store.Put(c.Request().Context(), raw)
	if err != nil {
		h.logger.Error().Err(err).Msg("save settings")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	uid, _ := auth.UserIDFromContext(c.Request().Context())
	h.logger.Info().Str("user_id", uid.String()).Msg("settings updated")
	return c.JSON(http.StatusOK, s)
}
