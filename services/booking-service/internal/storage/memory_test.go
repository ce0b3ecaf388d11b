package storage

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEnforcesActiveSlot(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	base := model.Appointment{DoctorID: "d1", PatientID: "p1", Date: monday, Slot: "09:00", Status: model.StatusPending, PaymentMethod: model.PaymentCard}

	first, err := m.InsertAppointment(ctx, base)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	_, err = m.InsertAppointment(ctx, base)
	require.ErrorIs(t, err, model.ErrSlotAlreadyBooked)

	_, err = m.UpdateAppointmentStatus(ctx, first.ID, func(a model.Appointment) (model.Appointment, error) {
		a.Status = model.StatusFailed
		return a, nil
	})
	require.NoError(t, err)

	second, err := m.InsertAppointment(ctx, base)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	events := m.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "booking.appointment.failed.v1", events[1].EventType)
}

func TestMemoryListing(t *testing.T) {
	clock := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return clock })
	ctx := context.Background()

	require.NoError(t, m.UpsertDoctor(ctx, model.Doctor{ID: "d2", Name: "B"}))
	require.NoError(t, m.UpsertDoctor(ctx, model.Doctor{ID: "d1", Name: "A"}))
	require.NoError(t, m.UpsertDoctor(ctx, model.Doctor{ID: "d2", Name: "B2"}))
	docs, err := m.ListDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].ID)
	assert.Equal(t, "B2", docs[0].Name)

	for i, slot := range []string{"10:00", "09:00"} {
		_, err := m.InsertAppointment(ctx, model.Appointment{DoctorID: "d1", PatientID: "p1", Date: monday.AddDays(i), Slot: slot, Status: model.StatusPending, PaymentMethod: model.PaymentCard})
		require.NoError(t, err)
		clock = clock.Add(10 * time.Minute)
	}

	got, err := m.ListHoldingForDoctor(ctx, "d1", monday, monday)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10:00", got[0].Slot)

	stale, err := m.ListStalePending(ctx, model.PaymentCard, time.Date(2026, 10, 18, 8, 5, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, monday, stale[0].Date)

	holding, err := m.ListHoldingOnDate(ctx, monday.AddDays(1))
	require.NoError(t, err)
	require.Len(t, holding, 1)

	_, err = m.GetDoctor(ctx, "zz")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryListHoldingForDoctorIsUncappedAndSkipsSettled(t *testing.T) {
	m := NewMemory(time.Now)
	ctx := context.Background()

	const days = 1100
	for i := 0; i < days; i++ {
		_, err := m.InsertAppointment(ctx, model.Appointment{DoctorID: "d1", PatientID: "p1", Date: monday.AddDays(i), Slot: "09:00", Status: model.StatusConfirmed, PaymentMethod: model.PaymentCash})
		require.NoError(t, err)
	}
	cancelled, err := m.InsertAppointment(ctx, model.Appointment{DoctorID: "d1", PatientID: "p2", Date: monday, Slot: "10:00", Status: model.StatusPending, PaymentMethod: model.PaymentCash})
	require.NoError(t, err)
	_, err = m.UpdateAppointmentStatus(ctx, cancelled.ID, func(a model.Appointment) (model.Appointment, error) {
		a.Status = model.StatusCancelled
		return a, nil
	})
	require.NoError(t, err)

	got, err := m.ListHoldingForDoctor(ctx, "d1", monday, monday.AddDays(days-1))
	require.NoError(t, err)
	assert.Len(t, got, days)
	for _, a := range got {
		assert.True(t, a.Status.Holding())
	}
}
