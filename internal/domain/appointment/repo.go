package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/herhealth/clinic/pkg/wallclock"
)

// SearchParams filters appointment listings. Nil fields are not applied.
// From and To select appointments overlapping [From, To).
type SearchParams struct {
	DoctorID   *uuid.UUID
	PatientID  *uuid.UUID
	CalendarID *uuid.UUID
	Status     *Status
	From       wallclock.DateTime
	To         wallclock.DateTime
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Appointment, int, error)

	// LockDoctor takes a row lock on the doctor for the rest of the current
	// transaction. It returns db.ErrNotFound for unknown doctors.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	// ListOccupying returns the doctor's appointments that occupy their slot
	// and overlap [from, to), on calendarID or on no calendar.
	ListOccupying(ctx context.Context, doctorID, calendarID uuid.UUID, from, to wallclock.DateTime, excludeID *uuid.UUID) ([]*Appointment, error)
}
