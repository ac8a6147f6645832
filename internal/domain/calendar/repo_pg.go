package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/pkg/wallclock"
)

// =========== Calendar Repository ===========

type calendarRepoPG struct{ pool *pgxpool.Pool }

func NewCalendarRepoPG(pool *pgxpool.Pool) CalendarRepository { return &calendarRepoPG{pool: pool} }

func (r *calendarRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const calendarCols = `id, doctor_id, name, color, is_active, created_at, updated_at`

func (r *calendarRepoPG) scanCalendar(row pgx.Row) (*Calendar, error) {
	var c Calendar
	err := row.Scan(&c.ID, &c.DoctorID, &c.Name, &c.Color, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &c, nil
}

func (r *calendarRepoPG) Create(ctx context.Context, c *Calendar) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO calendars (id, doctor_id, name, color, is_active)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		c.ID, c.DoctorID, c.Name, c.Color, c.IsActive).Scan(&c.CreatedAt, &c.UpdatedAt)
	return duplicateName(err, c.Name)
}

// duplicateName maps the (doctor_id, name) unique constraint to ErrInvalid.
func duplicateName(err error, name string) error {
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: calendar %q already exists for this doctor", ErrInvalid, name)
	}
	return err
}

func (r *calendarRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Calendar, error) {
	return r.scanCalendar(r.conn(ctx).QueryRow(ctx, `SELECT `+calendarCols+` FROM calendars WHERE id = $1`, id))
}

func (r *calendarRepoPG) Update(ctx context.Context, c *Calendar) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE calendars SET name=$2, color=$3, is_active=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING doctor_id, created_at, updated_at`,
		c.ID, c.Name, c.Color, c.IsActive).Scan(&c.DoctorID, &c.CreatedAt, &c.UpdatedAt)
	return duplicateName(db.NotFound(err), c.Name)
}

func (r *calendarRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM calendars WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *calendarRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Calendar, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+calendarCols+` FROM calendars WHERE doctor_id = $1 ORDER BY created_at, id`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Calendar
	for rows.Next() {
		c, err := r.scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// =========== Working Hour Repository ===========

type workingHourRepoPG struct{ pool *pgxpool.Pool }

func NewWorkingHourRepoPG(pool *pgxpool.Pool) WorkingHourRepository {
	return &workingHourRepoPG{pool: pool}
}

func (r *workingHourRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// TIME columns come back as text so the wall-clock value is parsed by
// wallclock and never passes through a time.Time.
const workingHourCols = `id, calendar_id, day_of_week, start_time::text, end_time::text, is_active, is_closed`

func (r *workingHourRepoPG) scanWorkingHour(row pgx.Row) (*WorkingHour, error) {
	var w WorkingHour
	var start, end string
	if err := row.Scan(&w.ID, &w.CalendarID, &w.DayOfWeek, &start, &end, &w.IsActive, &w.IsClosed); err != nil {
		return nil, db.NotFound(err)
	}
	var err error
	if w.StartTime, err = wallclock.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("%w: working hour %s start_time: %v", ErrInvalid, w.ID, err)
	}
	if w.EndTime, err = wallclock.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("%w: working hour %s end_time: %v", ErrInvalid, w.ID, err)
	}
	return &w, nil
}

func (r *workingHourRepoPG) Upsert(ctx context.Context, w *WorkingHour) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO working_hours (id, calendar_id, day_of_week, start_time, end_time, is_active, is_closed)
		VALUES ($1,$2,$3,$4::time,$5::time,$6,$7)
		ON CONFLICT (calendar_id, day_of_week) DO UPDATE SET
			start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
			is_active = EXCLUDED.is_active, is_closed = EXCLUDED.is_closed
		RETURNING id`,
		w.ID, w.CalendarID, w.DayOfWeek, w.StartTime.String(), w.EndTime.String(), w.IsActive, w.IsClosed).Scan(&w.ID)
}

func (r *workingHourRepoPG) GetForDay(ctx context.Context, calendarID uuid.UUID, dayOfWeek int) (*WorkingHour, error) {
	return r.scanWorkingHour(r.conn(ctx).QueryRow(ctx,
		`SELECT `+workingHourCols+` FROM working_hours WHERE calendar_id = $1 AND day_of_week = $2`,
		calendarID, dayOfWeek))
}

func (r *workingHourRepoPG) ListByCalendar(ctx context.Context, calendarID uuid.UUID) ([]*WorkingHour, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+workingHourCols+` FROM working_hours WHERE calendar_id = $1 ORDER BY day_of_week`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*WorkingHour
	for rows.Next() {
		w, err := r.scanWorkingHour(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// =========== Slot Config Repository ===========

type slotConfigRepoPG struct{ pool *pgxpool.Pool }

func NewSlotConfigRepoPG(pool *pgxpool.Pool) SlotConfigRepository { return &slotConfigRepoPG{pool: pool} }

func (r *slotConfigRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const slotConfigCols = `id, calendar_id, slot_duration_minutes, break_duration_minutes, max_appointments_per_slot, is_active`

func (r *slotConfigRepoPG) Upsert(ctx context.Context, c *TimeSlotConfig) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE time_slot_configs SET slot_duration_minutes=$2, break_duration_minutes=$3,
			max_appointments_per_slot=$4, is_active=$5
		WHERE id = (
			SELECT id FROM time_slot_configs WHERE calendar_id = $1 AND is_active
			ORDER BY created_at, id LIMIT 1
		)
		RETURNING id`,
		c.CalendarID, c.SlotDurationMinutes, c.BreakDurationMinutes, c.MaxAppointmentsPerSlot, c.IsActive).Scan(&c.ID)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	c.ID = uuid.New()
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO time_slot_configs (id, calendar_id, slot_duration_minutes, break_duration_minutes, max_appointments_per_slot, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.CalendarID, c.SlotDurationMinutes, c.BreakDurationMinutes, c.MaxAppointmentsPerSlot, c.IsActive)
	return err
}

func (r *slotConfigRepoPG) ListByCalendar(ctx context.Context, calendarID uuid.UUID) ([]*TimeSlotConfig, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+slotConfigCols+` FROM time_slot_configs WHERE calendar_id = $1 ORDER BY created_at, id`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TimeSlotConfig
	for rows.Next() {
		var c TimeSlotConfig
		if err := rows.Scan(&c.ID, &c.CalendarID, &c.SlotDurationMinutes, &c.BreakDurationMinutes, &c.MaxAppointmentsPerSlot, &c.IsActive); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

// =========== Exception Repository ===========

type exceptionRepoPG struct{ pool *pgxpool.Pool }

func NewExceptionRepoPG(pool *pgxpool.Pool) ExceptionRepository { return &exceptionRepoPG{pool: pool} }

func (r *exceptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const exceptionCols = `id, calendar_id, exception_type, start_datetime, end_datetime, reason, created_at`

func (r *exceptionRepoPG) scanException(row pgx.Row) (*Exception, error) {
	var e Exception
	var start, end time.Time
	if err := row.Scan(&e.ID, &e.CalendarID, &e.ExceptionType, &start, &end, &e.Reason, &e.CreatedAt); err != nil {
		return nil, db.NotFound(err)
	}
	e.StartDatetime = wallclock.FromTime(start)
	e.EndDatetime = wallclock.FromTime(end)
	return &e, nil
}

func (r *exceptionRepoPG) Create(ctx context.Context, e *Exception) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO calendar_exceptions (id, calendar_id, exception_type, start_datetime, end_datetime, reason)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		e.ID, e.CalendarID, e.ExceptionType, e.StartDatetime.Time(), e.EndDatetime.Time(), e.Reason).Scan(&e.CreatedAt)
}

func (r *exceptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Exception, error) {
	return r.scanException(r.conn(ctx).QueryRow(ctx, `SELECT `+exceptionCols+` FROM calendar_exceptions WHERE id = $1`, id))
}

func (r *exceptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM calendar_exceptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *exceptionRepoPG) ListByCalendar(ctx context.Context, calendarID uuid.UUID) ([]*Exception, error) {
	return r.list(ctx, `SELECT `+exceptionCols+` FROM calendar_exceptions WHERE calendar_id = $1 ORDER BY start_datetime, id`, calendarID)
}

func (r *exceptionRepoPG) ListOverlapping(ctx context.Context, calendarID uuid.UUID, from, to wallclock.DateTime) ([]*Exception, error) {
	return r.list(ctx, `SELECT `+exceptionCols+` FROM calendar_exceptions
		WHERE calendar_id = $1 AND start_datetime < $3 AND end_datetime > $2
		ORDER BY start_datetime, id`, calendarID, from.Time(), to.Time())
}

func (r *exceptionRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Exception, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Exception
	for rows.Next() {
		e, err := r.scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
