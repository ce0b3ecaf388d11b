package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/outbox"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptColumns = []string{"id", "doctor_id", "patient_id", "appt_date", "slot", "status", "payment_method", "total_amount", "payment_ref", "created_at", "updated_at"}

var monday = model.Date{Year: 2026, Month: time.October, Day: 19}

func newApptRepo(t *testing.T) (*AppointmentRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewAppointmentRepository(mock, outbox.NewRepository()), mock
}

func TestInsertAppointment(t *testing.T) {
	repo, mock := newApptRepo(t)
	created := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("d1", "p1", monday.Time(), "09:00", "pending", "cash", 40.0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("a1", created, created))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "a1", "booking.appointment.pending.v1", pgxmock.AnyArg(), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	got, err := repo.InsertAppointment(context.Background(), model.Appointment{
		DoctorID: "d1", PatientID: "p1", Date: monday, Slot: "09:00",
		Status: model.StatusPending, PaymentMethod: model.PaymentCash, TotalAmount: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAppointmentSlotConflict(t *testing.T) {
	repo, mock := newApptRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: ActiveSlotConstraint})
	mock.ExpectRollback()

	_, err := repo.InsertAppointment(context.Background(), model.Appointment{
		DoctorID: "d1", PatientID: "p1", Date: monday, Slot: "09:00",
		Status: model.StatusPending, PaymentMethod: model.PaymentCash,
	})
	require.ErrorIs(t, err, model.ErrSlotAlreadyBooked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentStatus(t *testing.T) {
	repo, mock := newApptRepo(t)
	created := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow("a1", "d1", "p1", monday.Time(), "09:00", "pending", "card", 40.0, "pi_1", created, created))
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("a1", "failed").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(updated))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "a1", "booking.appointment.failed.v1", pgxmock.AnyArg(), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	got, err := repo.UpdateAppointmentStatus(context.Background(), "a1", func(a model.Appointment) (model.Appointment, error) {
		assert.Equal(t, monday, a.Date)
		assert.Equal(t, model.PaymentCard, a.PaymentMethod)
		a.Status = model.StatusFailed
		return a, nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, updated, got.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentStatusRejectedWritesNothing(t *testing.T) {
	repo, mock := newApptRepo(t)
	created := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow("a1", "d1", "p1", monday.Time(), "09:00", "cancelled", "cash", 40.0, "", created, created))
	mock.ExpectRollback()

	got, err := repo.UpdateAppointmentStatus(context.Background(), "a1", func(a model.Appointment) (model.Appointment, error) {
		return a, model.ErrInvalidTransition
	})
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, model.StatusCancelled, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentStatusNotFound(t *testing.T) {
	repo, mock := newApptRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateAppointmentStatus(context.Background(), "missing", func(a model.Appointment) (model.Appointment, error) {
		t.Fatal("decide must not run for a missing row")
		return a, nil
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestGetAppointmentInvalidUUIDIsNotFound(t *testing.T) {
	repo, mock := newApptRepo(t)
	mock.ExpectQuery("FROM appointments").
		WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: "22P02"})

	_, err := repo.GetAppointment(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestListAppointmentsBuildsFilter(t *testing.T) {
	repo, mock := newApptRepo(t)
	created := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	to := monday.AddDays(6)

	mock.ExpectQuery(`WHERE doctor_id = \$1 AND appt_date >= \$2 AND appt_date <= \$3\s+ORDER BY appt_date, slot, created_at\s+LIMIT \$4`).
		WithArgs("d1", monday.Time(), to.Time(), 200).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow("a1", "d1", "p1", monday.Time(), "09:00", "confirmed", "cash", 40.0, "", created, created).
			AddRow("a2", "d1", "p2", monday.Time(), "10:00", "pending", "mobile-money", 40.0, "", created, created))

	got, err := repo.ListAppointments(context.Background(), model.AppointmentFilter{DoctorID: "d1", From: monday, To: to})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.PaymentMobileMoney, got[1].PaymentMethod)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListHoldingForDoctor(t *testing.T) {
	repo, mock := newApptRepo(t)
	created := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	to := monday.AddDays(59)

	mock.ExpectQuery(`WHERE doctor_id = \$1\s+AND appt_date BETWEEN \$2 AND \$3\s+AND status IN \('pending', 'confirmed'\)\s*$`).
		WithArgs("d1", monday.Time(), to.Time()).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow("a1", "d1", "p1", monday.Time(), "09:00", "confirmed", "cash", 40.0, "", created, created))

	got, err := repo.ListHoldingForDoctor(context.Background(), "d1", monday, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusConfirmed, got[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListStalePending(t *testing.T) {
	repo, mock := newApptRepo(t)
	cutoff := time.Date(2026, 10, 18, 9, 45, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE status = 'pending'").
		WithArgs("card", cutoff, 25).
		WillReturnRows(pgxmock.NewRows(apptColumns))

	got, err := repo.ListStalePending(context.Background(), model.PaymentCard, cutoff, 25)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPaymentRefMissing(t *testing.T) {
	repo, mock := newApptRepo(t)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("a1", "pi_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetPaymentRef(context.Background(), "a1", "pi_1")
	require.True(t, errors.Is(err, model.ErrNotFound))
}

func TestDoctorRepository(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewDoctorRepository(mock)

	cols := []string{"id", "name", "available_days", "available_hours", "payment_per_hour"}
	mock.ExpectQuery("FROM doctors").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("d1", "Dr. Achieng", "Monday, Wednesday", []string{"09:00", "10:00"}, 40.0).
			AddRow("d2", "Dr. Banda", "", []string{}, 25.0))
	mock.ExpectQuery("WHERE id = \\$1").WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO doctors").
		WithArgs("d3", "Dr. Chen", "Friday", []string{}, 30.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	docs, err := repo.ListDoctors(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"09:00", "10:00"}, docs[0].AvailableHours)

	_, err = repo.GetDoctor(context.Background(), "nope")
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repo.UpsertDoctor(context.Background(), model.Doctor{ID: "d3", Name: "Dr. Chen", AvailableDays: "Friday", PaymentPerHour: 30}))
	require.NoError(t, mock.ExpectationsWereMet())
}
