package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/herhealth/clinic/pkg/wallclock"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked-in"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no-show"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCheckedIn: true,
	StatusInProgress: true, StatusCompleted: true, StatusCancelled: true,
	StatusNoShow: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Occupies reports whether an appointment in this status takes up its slot.
func (s Status) Occupies() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// Appointment is a booked visit. StartAt and EndAt are clinic wall-clock
// times. A nil CalendarID means the appointment predates calendars and
// counts against every calendar of the doctor.
type Appointment struct {
	ID              uuid.UUID          `db:"id" json:"id"`
	PatientID       uuid.UUID          `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	CalendarID      *uuid.UUID         `db:"calendar_id" json:"calendar_id,omitempty"`
	StartAt         wallclock.DateTime `db:"start_at" json:"start_at"`
	EndAt           wallclock.DateTime `db:"end_at" json:"end_at"`
	DurationMinutes int                `db:"-" json:"duration_minutes,omitempty"`
	Type            *string            `db:"type" json:"type,omitempty"`
	Status          Status             `db:"status" json:"status"`
	ReservationType *string            `db:"reservation_type" json:"reservation_type,omitempty"`
	ContactPhone    *string            `db:"contact_phone" json:"contact_phone,omitempty"`
	Notes           *string            `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) Occupies() bool { return a.Status.Occupies() }

// fillEnd derives EndAt from DurationMinutes when only the duration was
// given, and DurationMinutes from the interval otherwise.
func (a *Appointment) fillEnd() {
	if a.EndAt.IsZero() && !a.StartAt.IsZero() && a.DurationMinutes > 0 {
		a.EndAt = a.StartAt.AddMinutes(a.DurationMinutes)
	}
	a.fillDuration()
}

func (a *Appointment) fillDuration() {
	if !a.StartAt.IsZero() && !a.EndAt.IsZero() {
		a.DurationMinutes = int(a.EndAt.Sub(a.StartAt) / time.Minute)
	}
}

// sameSlot reports whether a and b claim the same doctor, calendar and time.
func sameSlot(a, b *Appointment) bool {
	return a.StartAt.Equal(b.StartAt) && a.EndAt.Equal(b.EndAt) && sameCalendar(a, b)
}

func sameCalendar(a, b *Appointment) bool {
	if a.DoctorID != b.DoctorID || (a.CalendarID == nil) != (b.CalendarID == nil) {
		return false
	}
	return a.CalendarID == nil || *a.CalendarID == *b.CalendarID
}
