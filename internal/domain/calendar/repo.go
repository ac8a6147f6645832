package calendar

import (
	"context"

	"github.com/google/uuid"

	"github.com/herhealth/clinic/pkg/wallclock"
)

type CalendarRepository interface {
	Create(ctx context.Context, c *Calendar) error
	GetByID(ctx context.Context, id uuid.UUID) (*Calendar, error)
	Update(ctx context.Context, c *Calendar) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Calendar, error)
}

type WorkingHourRepository interface {
	// Upsert inserts or replaces the row for (CalendarID, DayOfWeek).
	Upsert(ctx context.Context, w *WorkingHour) error
	GetForDay(ctx context.Context, calendarID uuid.UUID, dayOfWeek int) (*WorkingHour, error)
	ListByCalendar(ctx context.Context, calendarID uuid.UUID) ([]*WorkingHour, error)
}

type SlotConfigRepository interface {
	// Upsert replaces the calendar's primary config, creating one if needed.
	Upsert(ctx context.Context, c *TimeSlotConfig) error
	ListByCalendar(ctx context.Context, calendarID uuid.UUID) ([]*TimeSlotConfig, error)
}

type ExceptionRepository interface {
	Create(ctx context.Context, e *Exception) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exception, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCalendar(ctx context.Context, calendarID uuid.UUID) ([]*Exception, error)
	// ListOverlapping returns exceptions sharing any instant with [from, to).
	ListOverlapping(ctx context.Context, calendarID uuid.UUID, from, to wallclock.DateTime) ([]*Exception, error)
}
