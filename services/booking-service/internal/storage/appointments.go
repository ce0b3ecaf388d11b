package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicportal/libs/db"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/outbox"
)

// ActiveSlotConstraint is the partial unique index over (doctor_id, appt_date, slot) for
// pending and confirmed rows. Losing a race on it is the canonical double-booking outcome.
const ActiveSlotConstraint = "appointments_active_slot_key"

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)

type AppointmentRepository struct {
	conn   db.Conn
	outbox *outbox.Repository
}

func NewAppointmentRepository(conn db.Conn, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{conn: conn, outbox: outboxRepo}
}

const appointmentColumns = `id::text, doctor_id, patient_id, appt_date, slot, status, payment_method,
			total_amount::float8, payment_ref, created_at, updated_at`

// InsertAppointment creates a and its outbox event in one transaction.
func (r *AppointmentRepository) InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(doctor_id, patient_id, appt_date, slot, status, payment_method, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at, updated_at
	`, a.DoctorID, a.PatientID, a.Date.Time(), a.Slot, string(a.Status), string(a.PaymentMethod), a.TotalAmount).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, ActiveSlotConstraint) {
			return model.Appointment{}, model.Errorf(model.KindSlotAlreadyBooked,
				"%s on %s is already booked; pick another slot", a.Slot, a.Date)
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	if err := r.emit(ctx, tx, a); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// UpdateAppointmentStatus locks the row, lets decide compute the next state and persists it.
// If decide fails nothing is written and the locked state is returned with the error.
func (r *AppointmentRepository) UpdateAppointmentStatus(ctx context.Context, id string, decide func(model.Appointment) (model.Appointment, error)) (model.Appointment, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, notFoundOr(err, id)
	}

	next, err := decide(cur)
	if err != nil {
		return cur, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, string(next.Status)).Scan(&next.UpdatedAt)
	if err != nil {
		return cur, fmt.Errorf("update appointment status: %w", err)
	}

	if err := r.emit(ctx, tx, next); err != nil {
		return cur, err
	}
	if err := tx.Commit(ctx); err != nil {
		return cur, err
	}
	return next, nil
}

func (r *AppointmentRepository) SetPaymentRef(ctx context.Context, id, ref string) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE appointments
		SET payment_ref = $2,
			updated_at = now()
		WHERE id = $1
	`, id, ref)
	if err != nil {
		return notFoundOr(err, id)
	}
	if tag.RowsAffected() == 0 {
		return model.Errorf(model.KindNotFound, "appointment %s not found", id)
	}
	return nil
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.conn.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Appointment{}, notFoundOr(err, id)
	}
	return a, nil
}

func (r *AppointmentRepository) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if !f.From.IsZero() {
		add("appt_date >= $%d", f.From.Time())
	}
	if !f.To.IsZero() {
		add("appt_date <= $%d", f.To.Time())
	}
	args = append(args, clampLimit(f.Limit))

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments`
	if len(where) > 0 {
		query += `
		WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(`
		ORDER BY appt_date, slot, created_at
		LIMIT $%d`, len(args))

	return r.list(ctx, query, args...)
}

// ListHoldingForDoctor returns the doctor's pending and confirmed appointments in [from, to].
// It is not paged: slot availability is wrong if any holding row is left out.
func (r *AppointmentRepository) ListHoldingForDoctor(ctx context.Context, doctorID string, from, to model.Date) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
			AND appt_date BETWEEN $2 AND $3
			AND status IN ('pending', 'confirmed')
	`, doctorID, from.Time(), to.Time())
}

// ListHoldingOnDate returns pending and confirmed appointments of all doctors on date.
func (r *AppointmentRepository) ListHoldingOnDate(ctx context.Context, date model.Date) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $1
			AND status IN ('pending', 'confirmed')
	`, date.Time())
}

// ListStalePending returns pending appointments paid by method that were created at or before
// createdBefore, oldest first.
func (r *AppointmentRepository) ListStalePending(ctx context.Context, method model.PaymentMethod, createdBefore time.Time, limit int) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
			AND payment_method = $1
			AND created_at <= $2
		ORDER BY created_at
		LIMIT $3
	`, string(method), createdBefore, clampLimit(limit))
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) emit(ctx context.Context, tx pgx.Tx, a model.Appointment) error {
	evt, err := outbox.AppointmentEvent(a, time.Now())
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var (
		a      model.Appointment
		date   time.Time
		status string
		method string
	)
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &date, &a.Slot, &status, &method,
		&a.TotalAmount, &a.PaymentRef, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Appointment{}, err
	}
	a.Date = model.DateOf(date)
	a.Status = model.Status(status)
	a.PaymentMethod = model.PaymentMethod(method)
	return a, nil
}

// notFoundOr maps a missing row, or an id that is not a valid uuid, to ErrNotFound.
func notFoundOr(err error, id string) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "22P02") {
		return model.Errorf(model.KindNotFound, "appointment %s not found", id)
	}
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
