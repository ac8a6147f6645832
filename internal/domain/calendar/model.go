package calendar

import (
	"time"

	"github.com/google/uuid"

	"github.com/herhealth/clinic/pkg/wallclock"
)

// Calendar is a named schedule owned by one doctor. A doctor may have several.
type Calendar struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WorkingHour is the weekly open interval of one calendar for one day.
// StartTime and EndTime are ignored when IsClosed is set.
type WorkingHour struct {
	ID         uuid.UUID           `db:"id" json:"id"`
	CalendarID uuid.UUID           `db:"calendar_id" json:"calendar_id"`
	DayOfWeek  int                 `db:"day_of_week" json:"day_of_week"`
	StartTime  wallclock.TimeOfDay `db:"start_time" json:"start_time"`
	EndTime    wallclock.TimeOfDay `db:"end_time" json:"end_time"`
	IsActive   bool                `db:"is_active" json:"is_active"`
	IsClosed   bool                `db:"is_closed" json:"is_closed"`
}

// Open reports whether the day produces slots at all.
func (w *WorkingHour) Open() bool {
	return w != nil && w.IsActive && !w.IsClosed
}

// TimeSlotConfig controls slot granularity for a calendar.
type TimeSlotConfig struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	CalendarID             uuid.UUID `db:"calendar_id" json:"calendar_id"`
	SlotDurationMinutes    int       `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	BreakDurationMinutes   int       `db:"break_duration_minutes" json:"break_duration_minutes"`
	MaxAppointmentsPerSlot int       `db:"max_appointments_per_slot" json:"max_appointments_per_slot"`
	IsActive               bool      `db:"is_active" json:"is_active"`
}

// Step is the distance in minutes between consecutive slot starts.
func (c *TimeSlotConfig) Step() int {
	return c.SlotDurationMinutes + c.BreakDurationMinutes
}

// DefaultSlotConfig is used when a calendar has no active slot configuration.
func DefaultSlotConfig() TimeSlotConfig {
	return TimeSlotConfig{SlotDurationMinutes: 30, BreakDurationMinutes: 0, MaxAppointmentsPerSlot: 1, IsActive: true}
}

// Primary returns the first active config, or nil when there is none.
func Primary(configs []*TimeSlotConfig) *TimeSlotConfig {
	for _, c := range configs {
		if c.IsActive {
			return c
		}
	}
	return nil
}

type ExceptionType string

const (
	ExceptionVacation  ExceptionType = "vacation"
	ExceptionHoliday   ExceptionType = "holiday"
	ExceptionEmergency ExceptionType = "emergency"
	ExceptionBlock     ExceptionType = "block"
)

func (t ExceptionType) Valid() bool {
	switch t {
	case ExceptionVacation, ExceptionHoliday, ExceptionEmergency, ExceptionBlock:
		return true
	}
	return false
}

// Exception closes [StartDatetime, EndDatetime) on a calendar regardless of
// working hours.
type Exception struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	CalendarID    uuid.UUID          `db:"calendar_id" json:"calendar_id"`
	ExceptionType ExceptionType      `db:"exception_type" json:"exception_type"`
	StartDatetime wallclock.DateTime `db:"start_datetime" json:"start_datetime"`
	EndDatetime   wallclock.DateTime `db:"end_datetime" json:"end_datetime"`
	Reason        *string            `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

// Label is the reason shown for slots this exception blocks.
func (e *Exception) Label() string {
	if e.Reason != nil && *e.Reason != "" {
		return *e.Reason
	}
	return string(e.ExceptionType)
}

// Covers reports whether dt lies in [StartDatetime, EndDatetime).
func (e *Exception) Covers(dt wallclock.DateTime) bool {
	return !dt.Before(e.StartDatetime) && dt.Before(e.EndDatetime)
}

// Overlaps reports whether the exception shares any instant with [start, end).
func (e *Exception) Overlaps(start, end wallclock.DateTime) bool {
	return wallclock.Overlaps(e.StartDatetime, e.EndDatetime, start, end)
}
