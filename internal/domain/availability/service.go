package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/internal/domain/doctor"
	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/pkg/wallclock"
)

// DoctorLookup is satisfied by *doctor.Service.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
}

// CalendarSource is satisfied by *calendar.Service.
type CalendarSource interface {
	GetCalendar(ctx context.Context, id uuid.UUID) (*calendar.Calendar, error)
	ListDoctorCalendars(ctx context.Context, doctorID uuid.UUID) ([]*calendar.Calendar, error)
	WorkingHourForDay(ctx context.Context, calendarID uuid.UUID, dayOfWeek int) (*calendar.WorkingHour, error)
	PrimarySlotConfig(ctx context.Context, calendarID uuid.UUID) (*calendar.TimeSlotConfig, error)
	ExceptionsBetween(ctx context.Context, calendarID uuid.UUID, from, to wallclock.DateTime) ([]*calendar.Exception, error)
}

// BookingQuery selects the occupying appointments of one doctor that overlap
// [From, To). Appointments on CalendarID or on no calendar at all are
// included. ExcludeID skips the appointment being edited.
type BookingQuery struct {
	DoctorID   uuid.UUID
	CalendarID uuid.UUID
	From       wallclock.DateTime
	To         wallclock.DateTime
	ExcludeID  *uuid.UUID
}

type BookingSource interface {
	ActiveBookings(ctx context.Context, q BookingQuery) ([]Booking, error)
}

// BookingRequest is a candidate appointment interval checked by the guard.
type BookingRequest struct {
	DoctorID             uuid.UUID          `json:"doctor_id"`
	CalendarID           uuid.UUID          `json:"calendar_id"`
	StartAt              wallclock.DateTime `json:"start_at"`
	EndAt                wallclock.DateTime `json:"end_at"`
	ExcludeAppointmentID *uuid.UUID         `json:"exclude_appointment_id,omitempty"`
}

type Service struct {
	engine    Engine
	doctors   DoctorLookup
	calendars CalendarSource
	bookings  BookingSource
}

func NewService(engine Engine, doctors DoctorLookup, calendars CalendarSource, bookings BookingSource) *Service {
	return &Service{engine: engine, doctors: doctors, calendars: calendars, bookings: bookings}
}

// ResolveCalendar returns the calendar a request operates on. An explicit
// calendarID must belong to the doctor. Without one, the doctor must have
// exactly one active calendar.
func (s *Service) ResolveCalendar(ctx context.Context, doctorID uuid.UUID, calendarID *uuid.UUID) (*calendar.Calendar, error) {
	if doctorID == uuid.Nil {
		return nil, validation("doctor_id is required")
	}
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, notFound("doctor %s", doctorID)
		}
		return nil, err
	}

	if calendarID != nil && *calendarID != uuid.Nil {
		cal, err := s.calendars.GetCalendar(ctx, *calendarID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && cal.DoctorID != doctorID) {
			return nil, notFound("calendar %s for doctor %s", *calendarID, doctorID)
		}
		return cal, err
	}

	cals, err := s.calendars.ListDoctorCalendars(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	var active []*calendar.Calendar
	for _, c := range cals {
		if c.IsActive {
			active = append(active, c)
		}
	}
	switch len(active) {
	case 0:
		return nil, notFound("doctor %s has no active calendar", doctorID)
	case 1:
		return active[0], nil
	default:
		return nil, validation("calendar_id is required: doctor %s has %d active calendars", doctorID, len(active))
	}
}

// ComputeAvailableSlots returns the slot grid of one calendar on one date.
// Every call reads working hours, slot config, appointments and exceptions
// afresh.
func (s *Service) ComputeAvailableSlots(ctx context.Context, doctorID uuid.UUID, date wallclock.Date, calendarID *uuid.UUID) (*Result, error) {
	if date.IsZero() {
		return nil, validation("date is required")
	}
	cal, err := s.ResolveCalendar(ctx, doctorID, calendarID)
	if err != nil {
		return nil, err
	}
	if !cal.IsActive {
		return closedResult(), nil
	}

	hours, err := s.calendars.WorkingHourForDay(ctx, cal.ID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if !hours.Open() {
		return closedResult(), nil
	}

	cfg, err := s.calendars.PrimarySlotConfig(ctx, cal.ID)
	if err != nil {
		return nil, err
	}

	dayStart, dayEnd := date.Start(), date.AddDays(1).Start()
	bookings, err := s.bookings.ActiveBookings(ctx, BookingQuery{
		DoctorID:   doctorID,
		CalendarID: cal.ID,
		From:       dayStart,
		To:         dayEnd,
	})
	if err != nil {
		return nil, err
	}
	exceptions, err := s.calendars.ExceptionsBetween(ctx, cal.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	return s.engine.Compute(DayInput{
		Date:       date,
		Hours:      hours,
		SlotConfig: cfg,
		Bookings:   bookings,
		Exceptions: exceptions,
	})
}

// ValidateBooking runs the booking guard for req on an explicitly named
// calendar. It returns nil when the interval can be booked and a
// *RejectionError when it cannot.
func (s *Service) ValidateBooking(ctx context.Context, req BookingRequest) error {
	if req.CalendarID == uuid.Nil {
		return validation("calendar_id is required")
	}
	_, err := s.GuardBooking(ctx, req)
	return err
}

// GuardBooking resolves the calendar of req once and runs the guard on it. A
// zero req.CalendarID falls back to the doctor's only active calendar. The
// resolved calendar is returned even when the interval is rejected. Callers
// that write appointments must run it inside the same transaction as the
// write.
func (s *Service) GuardBooking(ctx context.Context, req BookingRequest) (*calendar.Calendar, error) {
	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		return nil, validation("start_at and end_at are required")
	}
	if !req.EndAt.After(req.StartAt) {
		return nil, validation("end_at must be after start_at")
	}
	cal, err := s.ResolveCalendar(ctx, req.DoctorID, &req.CalendarID)
	if err != nil {
		return nil, err
	}
	return cal, s.checkOn(ctx, cal, req)
}

func (s *Service) checkOn(ctx context.Context, cal *calendar.Calendar, req BookingRequest) error {
	cfg, err := s.calendars.PrimarySlotConfig(ctx, cal.ID)
	if err != nil {
		return err
	}
	capacity := calendar.DefaultSlotConfig().MaxAppointmentsPerSlot
	if cfg != nil {
		capacity = cfg.MaxAppointmentsPerSlot
	}

	exceptions, err := s.calendars.ExceptionsBetween(ctx, cal.ID, req.StartAt, req.EndAt)
	if err != nil {
		return err
	}
	bookings, err := s.bookings.ActiveBookings(ctx, BookingQuery{
		DoctorID:   req.DoctorID,
		CalendarID: cal.ID,
		From:       req.StartAt,
		To:         req.EndAt,
		ExcludeID:  req.ExcludeAppointmentID,
	})
	if err != nil {
		return err
	}

	err = CheckBooking(req.StartAt, req.EndAt, capacity, bookings, exceptions)
	var rej *RejectionError
	if errors.As(err, &rej) {
		zerolog.Ctx(ctx).Info().
			Str("code", rej.Code).
			Str("doctor_id", req.DoctorID.String()).
			Str("calendar_id", cal.ID.String()).
			Str("start_at", req.StartAt.String()).
			Str("end_at", req.EndAt.String()).
			Msg("booking rejected")
	}
	return err
}
