package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/pkg/wallclock"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, doctor_id, calendar_id, start_at, end_at,
	type, status, reservation_type, contact_phone, notes, created_at, updated_at`

// occupyingStatus excludes appointments that no longer hold their slot.
const occupyingStatus = `status NOT IN ('cancelled', 'no-show')`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		start, end time.Time
		status     string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.CalendarID, &start, &end,
		&a.Type, &status, &a.ReservationType, &a.ContactPhone, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	a.StartAt = wallclock.FromTime(start)
	a.EndAt = wallclock.FromTime(end)
	a.Status = Status(status)
	a.fillDuration()
	return &a, nil
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, calendar_id, start_at, end_at,
			type, status, reservation_type, contact_phone, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.CalendarID, a.StartAt.Time(), a.EndAt.Time(),
		a.Type, string(a.Status), a.ReservationType, a.ContactPhone, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET patient_id=$2, doctor_id=$3, calendar_id=$4, start_at=$5, end_at=$6,
			type=$7, status=$8, reservation_type=$9, contact_phone=$10, notes=$11, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.CalendarID, a.StartAt.Time(), a.EndAt.Time(),
		a.Type, string(a.Status), a.ReservationType, a.ContactPhone, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.NotFound(err)
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, v)
		idx++
	}
	if params.DoctorID != nil {
		add(` AND doctor_id = $%d`, *params.DoctorID)
	}
	if params.PatientID != nil {
		add(` AND patient_id = $%d`, *params.PatientID)
	}
	if params.CalendarID != nil {
		add(` AND calendar_id = $%d`, *params.CalendarID)
	}
	if params.Status != nil {
		add(` AND status = $%d`, string(*params.Status))
	}
	if !params.From.IsZero() {
		add(` AND end_at > $%d`, params.From.Time())
	}
	if !params.To.IsZero() {
		add(` AND start_at < $%d`, params.To.Time())
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY start_at, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// LockDoctor serializes bookings per doctor. Two transactions booking the
// same doctor queue on this lock, so the second sees the first's insert when
// it runs the guard.
func (r *appointmentRepoPG) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	if db.TxFromContext(ctx) == nil {
		return fmt.Errorf("lock doctor %s: no transaction in context", doctorID)
	}
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, doctorID).Scan(&id)
	return db.NotFound(err)
}

func (r *appointmentRepoPG) ListOccupying(ctx context.Context, doctorID, calendarID uuid.UUID, from, to wallclock.DateTime, excludeID *uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1
		  AND (calendar_id = $2 OR calendar_id IS NULL)
		  AND start_at < $4 AND end_at > $3
		  AND ($5::uuid IS NULL OR id <> $5)
		  AND `+occupyingStatus+`
		ORDER BY start_at, id`,
		doctorID, calendarID, from.Time(), to.Time(), excludeID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}
