package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicportal/libs/db"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

// DoctorRepository reads the doctor directory. Doctor CRUD belongs to the portal's admin
// surface; this service only upserts records when seeding.
type DoctorRepository struct {
	conn db.Conn
}

func NewDoctorRepository(conn db.Conn) *DoctorRepository {
	return &DoctorRepository{conn: conn}
}

const doctorColumns = `id, name, available_days, available_hours, payment_per_hour::float8`

func (r *DoctorRepository) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []model.Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return doctors, nil
}

func (r *DoctorRepository) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	d, err := scanDoctor(r.conn.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Doctor{}, model.Errorf(model.KindNotFound, "doctor %s not found", id)
	}
	return d, err
}

func (r *DoctorRepository) UpsertDoctor(ctx context.Context, d model.Doctor) error {
	hours := d.AvailableHours
	if hours == nil {
		hours = []string{}
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO doctors (id, name, available_days, available_hours, payment_per_hour)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			available_days = EXCLUDED.available_days,
			available_hours = EXCLUDED.available_hours,
			payment_per_hour = EXCLUDED.payment_per_hour,
			updated_at = now()
	`, d.ID, d.Name, d.AvailableDays, hours, d.PaymentPerHour)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctor(row rowScanner) (model.Doctor, error) {
	var d model.Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.AvailableDays, &d.AvailableHours, &d.PaymentPerHour); err != nil {
		return model.Doctor{}, err
	}
	return d, nil
}
