package appointment

import (
	"context"

	"github.com/herhealth/clinic/internal/domain/availability"
)

// BookingSource exposes occupying appointments to the availability engine.
type BookingSource struct {
	repo AppointmentRepository
}

func NewBookingSource(repo AppointmentRepository) *BookingSource {
	return &BookingSource{repo: repo}
}

func (b *BookingSource) ActiveBookings(ctx context.Context, q availability.BookingQuery) ([]availability.Booking, error) {
	items, err := b.repo.ListOccupying(ctx, q.DoctorID, q.CalendarID, q.From, q.To, q.ExcludeID)
	if err != nil {
		return nil, err
	}
	out := make([]availability.Booking, 0, len(items))
	for _, a := range items {
		out = append(out, availability.Booking{ID: a.ID, Start: a.StartAt, End: a.EndAt})
	}
	return out, nil
}
