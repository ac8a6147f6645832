package availability

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/herhealth/clinic/internal/platform/auth"
	"github.com/herhealth/clinic/pkg/wallclock"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	g.GET("/calendars/available-slots", h.AvailableSlots)
	g.POST("/calendars/validate-booking", h.ValidateBooking)
}

// queryParam reads a camelCase query parameter, falling back to its
// snake_case spelling.
func queryParam(c echo.Context, camel, snake string) string {
	if v := c.QueryParam(camel); v != "" {
		return v
	}
	return c.QueryParam(snake)
}

func parseOptionalID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	rawDoctor := queryParam(c, "doctorId", "doctor_id")
	if rawDoctor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctorId is required")
	}
	doctorID, err := uuid.Parse(rawDoctor)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctorId")
	}

	rawDate := c.QueryParam("date")
	if rawDate == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	date, err := wallclock.ParseDate(rawDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	calendarID, err := parseOptionalID(queryParam(c, "calendarId", "calendar_id"), "calendarId")
	if err != nil {
		return err
	}

	result, err := h.svc.ComputeAvailableSlots(c.Request().Context(), doctorID, date, calendarID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type validateBookingRequest struct {
	DoctorID             uuid.UUID          `json:"doctor_id"`
	CalendarID           *uuid.UUID         `json:"calendar_id"`
	StartAt              wallclock.DateTime `json:"start_at"`
	EndAt                wallclock.DateTime `json:"end_at"`
	DurationMinutes      int                `json:"duration_minutes"`
	ExcludeAppointmentID *uuid.UUID         `json:"exclude_appointment_id"`
}

// ValidateBooking runs the guard without writing anything. It answers 200
// with {"ok":true} or the same 409 body an appointment write would get.
func (h *Handler) ValidateBooking(c echo.Context) error {
	var body validateBookingRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.EndAt.IsZero() && body.DurationMinutes > 0 && !body.StartAt.IsZero() {
		body.EndAt = body.StartAt.AddMinutes(body.DurationMinutes)
	}

	req := BookingRequest{
		DoctorID:             body.DoctorID,
		StartAt:              body.StartAt,
		EndAt:                body.EndAt,
		ExcludeAppointmentID: body.ExcludeAppointmentID,
	}
	if body.CalendarID != nil {
		req.CalendarID = *body.CalendarID
	}
	cal, err := h.svc.GuardBooking(c.Request().Context(), req)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "calendar_id": cal.ID})
}
