package calendar

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/herhealth/clinic/internal/platform/auth"
	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/pkg/wallclock"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	readGroup.GET("/calendars/doctor/:doctorId/all", h.ListDoctorCalendars)
	readGroup.GET("/calendars/:id", h.GetCalendar)
	readGroup.GET("/calendars/:id/working-hours", h.ListWorkingHours)
	readGroup.GET("/calendars/:id/time-slot-config", h.GetSlotConfig)
	readGroup.GET("/calendars/:id/exceptions", h.ListExceptions)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor))
	writeGroup.POST("/calendars", h.CreateCalendar)
	writeGroup.PUT("/calendars/:id", h.UpdateCalendar)
	writeGroup.DELETE("/calendars/:id", h.DeleteCalendar)
	writeGroup.PUT("/calendars/:id/working-hours", h.SetWorkingHours)
	writeGroup.PUT("/calendars/:id/time-slot-config", h.SetSlotConfig)
	writeGroup.POST("/calendars/:id/exceptions", h.CreateException)
	writeGroup.DELETE("/calendars/:id/exceptions/:exceptionId", h.DeleteException)
}

// CalendarSummary is the list view consumed by calendar pickers.
type CalendarSummary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	IsActive bool      `json:"is_active"`
}

type calendarUpdate struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	IsActive *bool  `json:"is_active"`
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Calendar Handlers --

func (h *Handler) ListDoctorCalendars(c echo.Context) error {
	doctorID, err := parseID(c, "doctorId")
	if err != nil {
		return err
	}
	cals, err := h.svc.ListDoctorCalendars(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	out := make([]CalendarSummary, 0, len(cals))
	for _, cal := range cals {
		out = append(out, CalendarSummary{ID: cal.ID, Name: cal.Name, Color: cal.Color, IsActive: cal.IsActive})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateCalendar(c echo.Context) error {
	var cal Calendar
	if err := c.Bind(&cal); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCalendar(c.Request().Context(), &cal); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cal)
}

func (h *Handler) GetCalendar(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cal, err := h.svc.GetCalendar(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cal)
}

func (h *Handler) UpdateCalendar(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body calendarUpdate
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	cal, err := h.svc.GetCalendar(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if body.Name != "" {
		cal.Name = body.Name
	}
	if body.Color != "" {
		cal.Color = body.Color
	}
	if body.IsActive != nil {
		cal.IsActive = *body.IsActive
	}
	if err := h.svc.UpdateCalendar(ctx, cal); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cal)
}

func (h *Handler) DeleteCalendar(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCalendar(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Working Hour Handlers --

func (h *Handler) ListWorkingHours(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	hours, err := h.svc.ListWorkingHours(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if hours == nil {
		hours = []*WorkingHour{}
	}
	return c.JSON(http.StatusOK, hours)
}

func (h *Handler) SetWorkingHours(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var hours []*WorkingHour
	if err := c.Bind(&hours); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetWorkingHours(c.Request().Context(), id, hours); err != nil {
		return httpError(err)
	}
	return h.ListWorkingHours(c)
}

// -- Slot Config Handlers --

func (h *Handler) GetSlotConfig(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cfg, err := h.svc.GetSlotConfig(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) SetSlotConfig(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var cfg TimeSlotConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg.CalendarID = id
	if err := h.svc.SetSlotConfig(c.Request().Context(), &cfg); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// -- Exception Handlers --

func (h *Handler) ListExceptions(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var from, to wallclock.DateTime
	if s := c.QueryParam("from"); s != "" {
		if from, err = wallclock.ParseRangeBound(s, false); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if s := c.QueryParam("to"); s != "" {
		if to, err = wallclock.ParseRangeBound(s, true); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	items, err := h.svc.ListExceptions(c.Request().Context(), id, from, to)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Exception{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateException(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var ex Exception
	if err := c.Bind(&ex); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ex.CalendarID = id
	if err := h.svc.CreateException(c.Request().Context(), &ex); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ex)
}

func (h *Handler) DeleteException(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	exceptionID, err := parseID(c, "exceptionId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteException(c.Request().Context(), id, exceptionID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
