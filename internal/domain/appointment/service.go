package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/herhealth/clinic/internal/domain/availability"
	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/internal/platform/db"
)

var ErrInvalid = errors.New("invalid appointment")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Guard is satisfied by *availability.Service.
type Guard interface {
	ResolveCalendar(ctx context.Context, doctorID uuid.UUID, calendarID *uuid.UUID) (*calendar.Calendar, error)
	GuardBooking(ctx context.Context, req availability.BookingRequest) (*calendar.Calendar, error)
}

// Notifier is told about new bookings after they commit.
type Notifier interface {
	AppointmentBooked(ctx context.Context, a *Appointment) error
}

type Service struct {
	appointments AppointmentRepository
	guard        Guard
	notifier     Notifier
	tx           db.Transactor
}

// NewService builds the appointment service. notifier may be nil.
func NewService(appts AppointmentRepository, guard Guard, notifier Notifier, tx db.Transactor) *Service {
	return &Service{appointments: appts, guard: guard, notifier: notifier, tx: tx}
}

func validate(a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return invalid("patient_id is required")
	}
	if a.DoctorID == uuid.Nil {
		return invalid("doctor_id is required")
	}
	if a.StartAt.IsZero() {
		return invalid("start_at is required")
	}
	if a.EndAt.IsZero() {
		return invalid("end_at or duration_minutes is required")
	}
	if !a.EndAt.After(a.StartAt) {
		return invalid("end_at must be after start_at")
	}
	if !a.Status.Valid() {
		return invalid("invalid status %q", a.Status)
	}
	return nil
}

// claimSlot resolves the calendar for a and, when a occupies its slot, runs
// the booking guard. It must run inside the transaction that writes a.
func (s *Service) claimSlot(ctx context.Context, a *Appointment, exclude *uuid.UUID) error {
	if err := s.appointments.LockDoctor(ctx, a.DoctorID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: doctor %s", availability.ErrNotFound, a.DoctorID)
		}
		return err
	}
	if !a.Occupies() {
		return s.assignCalendar(ctx, a)
	}

	req := availability.BookingRequest{
		DoctorID:             a.DoctorID,
		StartAt:              a.StartAt,
		EndAt:                a.EndAt,
		ExcludeAppointmentID: exclude,
	}
	if a.CalendarID != nil {
		req.CalendarID = *a.CalendarID
	}
	cal, err := s.guard.GuardBooking(ctx, req)
	if err != nil {
		return err
	}
	a.CalendarID = &cal.ID
	return nil
}

// assignCalendar checks that a's calendar belongs to its doctor, or picks
// the doctor's only active calendar when a names none.
func (s *Service) assignCalendar(ctx context.Context, a *Appointment) error {
	cal, err := s.guard.ResolveCalendar(ctx, a.DoctorID, a.CalendarID)
	if err != nil {
		return err
	}
	a.CalendarID = &cal.ID
	return nil
}

// CreateAppointment books a. The guard and the insert share one transaction
// holding the doctor's row lock, so concurrent bookings of the same slot
// cannot both pass.
func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	a.fillEnd()
	if err := validate(a); err != nil {
		return err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.claimSlot(ctx, a, nil); err != nil {
			return err
		}
		return s.appointments.Create(ctx, a)
	})
	if err != nil {
		return err
	}

	if a.Occupies() {
		s.notify(ctx, a)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, a *Appointment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AppointmentBooked(ctx, a); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Msg("booking notification failed")
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// needsGuard reports whether moving from prev to next can take a slot that
// prev did not already hold.
func needsGuard(prev, next *Appointment) bool {
	if !next.Occupies() {
		return false
	}
	return !prev.Occupies() || !sameSlot(prev, next)
}

// UpdateAppointment replaces the stored appointment with a. Changes that
// claim a new slot, or bring a cancelled appointment back, go through the
// booking guard with the appointment itself excluded. Any other change of
// doctor or calendar still has its calendar ownership checked.
func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	a.fillEnd()
	if err := validate(a); err != nil {
		return err
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		prev, err := s.appointments.GetByID(ctx, a.ID)
		if err != nil {
			return err
		}
		if a.CalendarID == nil && prev.DoctorID == a.DoctorID {
			a.CalendarID = prev.CalendarID
		}
		switch {
		case needsGuard(prev, a):
			if err := s.claimSlot(ctx, a, &a.ID); err != nil {
				return err
			}
		case !sameCalendar(prev, a):
			if err := s.assignCalendar(ctx, a); err != nil {
				return err
			}
		}
		return s.appointments.Update(ctx, a)
	})
}

// CancelAppointment frees the slot. Cancelling twice is not an error.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var out *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCancelled {
			out = a
			return nil
		}
		if a.Status == StatusCompleted {
			return invalid("a completed appointment cannot be cancelled")
		}
		a.Status = StatusCancelled
		if reason != "" {
			note := reason
			if a.Notes != nil && *a.Notes != "" {
				note = *a.Notes + "\n" + reason
			}
			a.Notes = &note
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.appointments.Delete(ctx, id)
}

func (s *Service) SearchAppointments(ctx context.Context, params SearchParams, limit, offset int) ([]*Appointment, int, error) {
	if !params.From.IsZero() && !params.To.IsZero() && !params.To.After(params.From) {
		return nil, 0, invalid("date_to must be after date_from")
	}
	return s.appointments.Search(ctx, params, limit, offset)
}
