package notification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/notifications")
	g.GET("", h.List)
	g.GET("/unread-count", h.UnreadCount)
	g.PATCH("/read-all", h.MarkAllAsRead)
	g.POST("/read-all", h.MarkAllAsRead)
	g.PATCH("/:id/read", h.MarkAsRead)
	g.DELETE("/:id", h.Delete)
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	uid, ok := auth.UserIDFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

func (h *Handler) List(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	items, err := h.svc.FindByUser(c.Request().Context(), uid, c.QueryParam("unreadOnly") == "true")
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) MarkAsRead(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	n, err := h.svc.MarkAsRead(c.Request().Context(), id, uid)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkAllAsRead(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkAllAsRead(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": n})
}

func (h *Handler) Delete(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id, uid); err != nil {
		return h.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) httpError(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	h.logger.Error().Err(err).Str("path", c.Path()).Msg("notification request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
