// Package availability turns a calendar's weekly configuration, its
// exceptions and the doctor's existing appointments into a bookable slot
// grid, and guards appointment writes against blocked or full intervals.
package availability

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/pkg/wallclock"
)

// ReasonClosed is reported when the day has no usable working hours.
const ReasonClosed = "closed"

// Booking is an occupied interval. Only appointments that occupy a slot are
// ever turned into bookings.
type Booking struct {
	ID    uuid.UUID
	Start wallclock.DateTime
	End   wallclock.DateTime
}

func (b Booking) contains(dt wallclock.DateTime) bool {
	return !dt.Before(b.Start) && dt.Before(b.End)
}

// Slot is one generated start time. A blocked slot is never available;
// IsBooked is tracked separately so clients can style the two apart.
//
// A slot is judged over its whole length, [Time, Time+duration), with the
// same rules CheckBooking applies, so a slot offered as available is one the
// guard accepts. Booked counts the appointments running at once at the
// busiest point of the slot; IsBooked means that count reached capacity.
type Slot struct {
	Time        wallclock.TimeOfDay `json:"start_time"`
	Available   bool                `json:"available"`
	IsBooked    bool                `json:"is_booked"`
	Booked      int                 `json:"booked"`
	IsBlocked   bool                `json:"is_blocked,omitempty"`
	BlockReason string              `json:"block_reason,omitempty"`
}

type Result struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Slots     []Slot `json:"slots"`
}

func closedResult() *Result {
	return &Result{Available: false, Reason: ReasonClosed, Slots: []Slot{}}
}

// DayInput is everything the engine needs for one calendar and one date.
// Bookings and Exceptions may include entries that do not touch Date.
type DayInput struct {
	Date       wallclock.Date
	Hours      *calendar.WorkingHour
	SlotConfig *calendar.TimeSlotConfig
	Bookings   []Booking
	Exceptions []*calendar.Exception
}

// Engine computes slot grids. It holds no state between calls.
//
// With ClipToClose unset a slot is emitted whenever its start is before the
// closing time, even if the slot runs past it. With ClipToClose set the
// whole slot must fit before closing.
type Engine struct {
	ClipToClose bool
}

func effectiveConfig(cfg *calendar.TimeSlotConfig) (calendar.TimeSlotConfig, error) {
	if cfg == nil {
		return calendar.DefaultSlotConfig(), nil
	}
	c := *cfg
	if err := calendar.ValidateSlotConfig(&c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return c, nil
}

// Compute builds the slot grid for in.Date. A missing, inactive or closed
// working day yields a closed result rather than an error.
func (e Engine) Compute(in DayInput) (*Result, error) {
	if !in.Hours.Open() {
		return closedResult(), nil
	}
	if in.Date.IsZero() {
		return nil, validation("date is required")
	}
	if in.Hours.EndTime <= in.Hours.StartTime {
		return nil, validation("working hours end %s is not after start %s", in.Hours.EndTime, in.Hours.StartTime)
	}
	cfg, err := effectiveConfig(in.SlotConfig)
	if err != nil {
		return nil, err
	}

	step := wallclock.TimeOfDay(cfg.Step())
	duration := wallclock.TimeOfDay(cfg.SlotDurationMinutes)

	slots := []Slot{}
	for t := in.Hours.StartTime; t < in.Hours.EndTime; t += step {
		if e.ClipToClose && t+duration > in.Hours.EndTime {
			break
		}
		slots = append(slots, buildSlot(in, t, duration, cfg.MaxAppointmentsPerSlot))
	}
	return &Result{Available: true, Slots: slots}, nil
}

func buildSlot(in DayInput, t, duration wallclock.TimeOfDay, capacity int) Slot {
	start, end := in.Date.At(t), in.Date.At(t+duration)
	s := Slot{Time: t}

	for _, ex := range in.Exceptions {
		if ex.Overlaps(start, end) {
			s.IsBlocked = true
			s.BlockReason = ex.Label()
			break
		}
	}

	s.Booked = peakOverlap(start, end, in.Bookings)
	s.IsBooked = s.Booked >= capacity
	s.Available = !s.IsBlocked && !s.IsBooked
	return s
}

// CheckBooking decides whether [start, end) can take one more appointment.
// It rejects with BLOCKED when any exception overlaps the interval and with
// DOUBLE_BOOKED when the number of bookings running at the same time reaches
// capacity at any point of the interval.
func CheckBooking(start, end wallclock.DateTime, capacity int, bookings []Booking, exceptions []*calendar.Exception) error {
	if start.IsZero() || end.IsZero() {
		return validation("start_at and end_at are required")
	}
	if !end.After(start) {
		return validation("end_at must be after start_at")
	}
	if capacity < 1 {
		return validation("capacity must be at least 1, got %d", capacity)
	}

	for _, ex := range exceptions {
		if ex.Overlaps(start, end) {
			return &RejectionError{
				Code:   CodeBlocked,
				Reason: fmt.Sprintf("%s to %s is blocked (%s)", ex.StartDatetime, ex.EndDatetime, ex.Label()),
			}
		}
	}

	if peak := peakOverlap(start, end, bookings); peak >= capacity {
		return &RejectionError{
			Code:   CodeDoubleBooked,
			Reason: fmt.Sprintf("%s to %s already has %d of %d appointments", start, end, peak, capacity),
		}
	}
	return nil
}

// peakOverlap returns the highest number of bookings running at once inside
// [start, end). The maximum is always reached at start or at the start of
// one of the bookings, so only those instants are sampled.
func peakOverlap(start, end wallclock.DateTime, bookings []Booking) int {
	points := []wallclock.DateTime{start}
	for _, b := range bookings {
		if b.Start.After(start) && b.Start.Before(end) {
			points = append(points, b.Start)
		}
	}

	peak := 0
	for _, p := range points {
		n := 0
		for _, b := range bookings {
			if b.contains(p) {
				n++
			}
		}
		if n > peak {
			peak = n
		}
	}
	return peak
}
