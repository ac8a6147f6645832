package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/herhealth/clinic/internal/domain/doctor"
	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/pkg/wallclock"
)

// ErrInvalid marks calendar configuration that failed validation, including
// malformed values read back from storage.
var ErrInvalid = errors.New("invalid calendar configuration")

const defaultColor = "#3b82f6"

// DoctorLookup is satisfied by *doctor.Service.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
}

type Service struct {
	calendars   CalendarRepository
	hours       WorkingHourRepository
	slotConfigs SlotConfigRepository
	exceptions  ExceptionRepository
	doctors     DoctorLookup
	tx          db.Transactor
}

func NewService(cal CalendarRepository, wh WorkingHourRepository, sc SlotConfigRepository, ex ExceptionRepository, doctors DoctorLookup, tx db.Transactor) *Service {
	return &Service{calendars: cal, hours: wh, slotConfigs: sc, exceptions: ex, doctors: doctors, tx: tx}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// -- Calendar --

func (s *Service) CreateCalendar(ctx context.Context, c *Calendar) error {
	if c.DoctorID == uuid.Nil {
		return invalid("doctor_id is required")
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return invalid("name is required")
	}
	if c.Color == "" {
		c.Color = defaultColor
	}
	if _, err := s.doctors.GetDoctor(ctx, c.DoctorID); err != nil {
		return err
	}
	c.IsActive = true
	return s.calendars.Create(ctx, c)
}

func (s *Service) GetCalendar(ctx context.Context, id uuid.UUID) (*Calendar, error) {
	return s.calendars.GetByID(ctx, id)
}

func (s *Service) UpdateCalendar(ctx context.Context, c *Calendar) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return invalid("name is required")
	}
	if c.Color == "" {
		c.Color = defaultColor
	}
	return s.calendars.Update(ctx, c)
}

func (s *Service) DeleteCalendar(ctx context.Context, id uuid.UUID) error {
	return s.calendars.Delete(ctx, id)
}

// ListDoctorCalendars returns every calendar of the doctor, active or not.
func (s *Service) ListDoctorCalendars(ctx context.Context, doctorID uuid.UUID) ([]*Calendar, error) {
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.calendars.ListByDoctor(ctx, doctorID)
}

// -- Working hours --

func (s *Service) ListWorkingHours(ctx context.Context, calendarID uuid.UUID) ([]*WorkingHour, error) {
	if _, err := s.calendars.GetByID(ctx, calendarID); err != nil {
		return nil, err
	}
	return s.hours.ListByCalendar(ctx, calendarID)
}

// SetWorkingHours upserts one row per given day. Days not in hours are left
// untouched. All rows are written in one transaction.
func (s *Service) SetWorkingHours(ctx context.Context, calendarID uuid.UUID, hours []*WorkingHour) error {
	seen := make(map[int]bool, len(hours))
	for _, w := range hours {
		if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
			return invalid("day_of_week must be between 0 and 6, got %d", w.DayOfWeek)
		}
		if seen[w.DayOfWeek] {
			return invalid("day_of_week %d given twice", w.DayOfWeek)
		}
		seen[w.DayOfWeek] = true
		if w.StartTime < 0 || w.StartTime >= wallclock.EndOfDay || w.EndTime < 0 || w.EndTime > wallclock.EndOfDay {
			return invalid("working hours on day %d must lie within 00:00 and 24:00", w.DayOfWeek)
		}
		if !w.IsClosed && w.EndTime <= w.StartTime {
			return invalid("end_time must be after start_time on day %d", w.DayOfWeek)
		}
		w.CalendarID = calendarID
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.calendars.GetByID(ctx, calendarID); err != nil {
			return err
		}
		for _, w := range hours {
			if err := s.hours.Upsert(ctx, w); err != nil {
				return fmt.Errorf("upsert working hour for day %d: %w", w.DayOfWeek, err)
			}
		}
		return nil
	})
}

// WorkingHourForDay returns nil, nil when the day has never been configured.
func (s *Service) WorkingHourForDay(ctx context.Context, calendarID uuid.UUID, dayOfWeek int) (*WorkingHour, error) {
	w, err := s.hours.GetForDay(ctx, calendarID, dayOfWeek)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return w, err
}

// -- Slot config --

// PrimarySlotConfig returns the first active config, or nil when there is none.
func (s *Service) PrimarySlotConfig(ctx context.Context, calendarID uuid.UUID) (*TimeSlotConfig, error) {
	configs, err := s.slotConfigs.ListByCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return Primary(configs), nil
}

// GetSlotConfig returns the effective config, falling back to the defaults.
func (s *Service) GetSlotConfig(ctx context.Context, calendarID uuid.UUID) (*TimeSlotConfig, error) {
	if _, err := s.calendars.GetByID(ctx, calendarID); err != nil {
		return nil, err
	}
	cfg, err := s.PrimarySlotConfig(ctx, calendarID)
	if err != nil || cfg != nil {
		return cfg, err
	}
	def := DefaultSlotConfig()
	def.CalendarID = calendarID
	return &def, nil
}

// Upper bounds for slot configs. A slot or break never spans more than a day.
const (
	MaxSlotMinutes  = 24 * 60
	MaxSlotCapacity = 1000
)

func ValidateSlotConfig(c *TimeSlotConfig) error {
	if c.SlotDurationMinutes <= 0 || c.SlotDurationMinutes > MaxSlotMinutes {
		return invalid("slot_duration_minutes must be between 1 and %d, got %d", MaxSlotMinutes, c.SlotDurationMinutes)
	}
	if c.BreakDurationMinutes < 0 || c.BreakDurationMinutes > MaxSlotMinutes {
		return invalid("break_duration_minutes must be between 0 and %d, got %d", MaxSlotMinutes, c.BreakDurationMinutes)
	}
	if c.MaxAppointmentsPerSlot < 1 || c.MaxAppointmentsPerSlot > MaxSlotCapacity {
		return invalid("max_appointments_per_slot must be between 1 and %d, got %d", MaxSlotCapacity, c.MaxAppointmentsPerSlot)
	}
	return nil
}

func (s *Service) SetSlotConfig(ctx context.Context, c *TimeSlotConfig) error {
	if c.MaxAppointmentsPerSlot == 0 {
		c.MaxAppointmentsPerSlot = 1
	}
	if err := ValidateSlotConfig(c); err != nil {
		return err
	}
	if _, err := s.calendars.GetByID(ctx, c.CalendarID); err != nil {
		return err
	}
	c.IsActive = true
	return s.slotConfigs.Upsert(ctx, c)
}

// -- Exceptions --

func validateException(e *Exception) error {
	if !e.ExceptionType.Valid() {
		return invalid("exception_type must be one of vacation, holiday, emergency, block")
	}
	if e.StartDatetime.IsZero() || e.EndDatetime.IsZero() {
		return invalid("start_datetime and end_datetime are required")
	}
	if !e.EndDatetime.After(e.StartDatetime) {
		return invalid("end_datetime must be after start_datetime")
	}
	return nil
}

// ListExceptions returns the calendar's exceptions. When both bounds are set
// only those overlapping [from, to) are returned.
func (s *Service) ListExceptions(ctx context.Context, calendarID uuid.UUID, from, to wallclock.DateTime) ([]*Exception, error) {
	if _, err := s.calendars.GetByID(ctx, calendarID); err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return s.exceptions.ListByCalendar(ctx, calendarID)
	}
	if !to.After(from) {
		return nil, invalid("to must be after from")
	}
	return s.exceptions.ListOverlapping(ctx, calendarID, from, to)
}

// ExceptionsBetween returns exceptions overlapping [from, to) without
// checking the calendar exists.
func (s *Service) ExceptionsBetween(ctx context.Context, calendarID uuid.UUID, from, to wallclock.DateTime) ([]*Exception, error) {
	return s.exceptions.ListOverlapping(ctx, calendarID, from, to)
}

func (s *Service) CreateException(ctx context.Context, e *Exception) error {
	if e.ExceptionType == "" {
		e.ExceptionType = ExceptionBlock
	}
	if err := validateException(e); err != nil {
		return err
	}
	if _, err := s.calendars.GetByID(ctx, e.CalendarID); err != nil {
		return err
	}
	return s.exceptions.Create(ctx, e)
}

// DeleteException removes an exception, refusing ids that belong to another
// calendar.
func (s *Service) DeleteException(ctx context.Context, calendarID, exceptionID uuid.UUID) error {
	e, err := s.exceptions.GetByID(ctx, exceptionID)
	if err != nil {
		return err
	}
	if e.CalendarID != calendarID {
		return db.ErrNotFound
	}
	return s.exceptions.Delete(ctx, exceptionID)
}

// ImportExceptions stores externally sourced exceptions, skipping any that
// already exist with the same interval and label. It returns how many rows
// were created.
func (s *Service) ImportExceptions(ctx context.Context, calendarID uuid.UUID, incoming []*Exception) (int, error) {
	for _, e := range incoming {
		e.CalendarID = calendarID
		if err := validateException(e); err != nil {
			return 0, err
		}
	}
	if len(incoming) == 0 {
		return 0, nil
	}

	created := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.calendars.GetByID(ctx, calendarID); err != nil {
			return err
		}

		from, to := incoming[0].StartDatetime, incoming[0].EndDatetime
		for _, e := range incoming[1:] {
			if e.StartDatetime.Before(from) {
				from = e.StartDatetime
			}
			if e.EndDatetime.After(to) {
				to = e.EndDatetime
			}
		}
		existing, err := s.exceptions.ListOverlapping(ctx, calendarID, from, to)
		if err != nil {
			return err
		}

		for _, e := range incoming {
			if containsException(existing, e) {
				continue
			}
			if err := s.exceptions.Create(ctx, e); err != nil {
				return err
			}
			existing = append(existing, e)
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func containsException(list []*Exception, e *Exception) bool {
	for _, x := range list {
		if x.StartDatetime.Equal(e.StartDatetime) && x.EndDatetime.Equal(e.EndDatetime) && x.Label() == e.Label() {
			return true
		}
	}
	return false
}
