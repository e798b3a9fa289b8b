package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/platform/auth"
	"github.com/clinicdesk/clinic/internal/platform/middleware"
)

type Handler struct {
	svc    *Service
	dir    *Directory
	logger zerolog.Logger
}

func NewHandler(svc *Service, dir *Directory, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, dir: dir, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments", auth.RequireStaff())
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/upcoming", h.Upcoming)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Remove)
}

// createRequest and updateRequest take scheduledAt as text so that
// offset-less local date-times can be read in the clinic timezone.
type createRequest struct {
	CreateAppointmentInput
	ScheduledAt string `json:"scheduledAt"`
}

type updateRequest struct {
	UpdateAppointmentInput
	ScheduledAt *string `json:"scheduledAt,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in := req.CreateAppointmentInput
	if req.ScheduledAt != "" {
		t, err := ParseScheduledAt(req.ScheduledAt, h.dir.loc)
		if err != nil {
			return h.httpError(c, err)
		}
		in.ScheduledAt = t
	}
	a, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) List(c echo.Context) error {
	var f Filter
	var err error
	if f.DoctorID, err = optionalUUID(c, "doctorId"); err != nil {
		return err
	}
	if f.PatientID, err = optionalUUID(c, "patientId"); err != nil {
		return err
	}
	if s := c.QueryParam("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return h.httpError(c, err)
		}
		f.Status = &st
	}
	f.Date = c.QueryParam("date")

	items, err := h.dir.FindAll(c.Request().Context(), f)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Upcoming(c echo.Context) error {
	doctorID, err := optionalUUID(c, "doctorId")
	if err != nil {
		return err
	}
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}
	items, err := h.dir.Upcoming(c.Request().Context(), doctorID, limit)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in := req.UpdateAppointmentInput
	if req.ScheduledAt != nil {
		t, err := ParseScheduledAt(*req.ScheduledAt, h.dir.loc)
		if err != nil {
			return h.httpError(c, err)
		}
		in.ScheduledAt = &t
	}
	a, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Remove(c.Request().Context(), id)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func optionalUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

// httpError maps domain errors to HTTP status codes. Unexpected errors are
// logged and surface as a bare 500.
func (h *Handler) httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		var ce *ConflictError
		if errors.As(err, &ce) {
			return echo.NewHTTPError(http.StatusConflict, ce.Error())
		}
		return echo.NewHTTPError(http.StatusConflict, "time slot already booked")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.logger.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Str("path", c.Path()).Msg("appointment request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
