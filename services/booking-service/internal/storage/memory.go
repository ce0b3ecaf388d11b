package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/outbox"
)

// Memory is a process-local doctor directory and appointment store. It enforces the same
// one-holding-appointment-per-slot rule as the Postgres index and records the events the
// Postgres store would write to its outbox.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	doctors map[string]model.Doctor
	roster  []string
	appts   map[string]model.Appointment
	active  map[model.SlotKey]string
	events  []outbox.Event
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:     now,
		doctors: make(map[string]model.Doctor),
		appts:   make(map[string]model.Appointment),
		active:  make(map[model.SlotKey]string),
	}
}

func (m *Memory) UpsertDoctor(_ context.Context, d model.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; !ok {
		m.roster = append(m.roster, d.ID)
	}
	d.AvailableHours = slices.Clone(d.AvailableHours)
	m.doctors[d.ID] = d
	return nil
}

func (m *Memory) ListDoctors(_ context.Context) ([]model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Doctor, 0, len(m.roster))
	for _, id := range m.roster {
		out = append(out, m.doctors[id])
	}
	return out, nil
}

func (m *Memory) GetDoctor(_ context.Context, id string) (model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return model.Doctor{}, model.Errorf(model.KindNotFound, "doctor %s not found", id)
	}
	return d, nil
}

func (m *Memory) InsertAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.SlotKey()
	if a.Status.Holding() {
		if _, taken := m.active[key]; taken {
			return model.Appointment{}, model.Errorf(model.KindSlotAlreadyBooked,
				"%s on %s is already booked; pick another slot", a.Slot, a.Date)
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = m.now().UTC()
	a.UpdatedAt = a.CreatedAt
	if err := m.emit(a); err != nil {
		return model.Appointment{}, err
	}
	m.appts[a.ID] = a
	if a.Status.Holding() {
		m.active[key] = a.ID
	}
	return a, nil
}

func (m *Memory) UpdateAppointmentStatus(_ context.Context, id string, decide func(model.Appointment) (model.Appointment, error)) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, model.Errorf(model.KindNotFound, "appointment %s not found", id)
	}
	next, err := decide(cur)
	if err != nil {
		return cur, err
	}
	next.UpdatedAt = m.now().UTC()
	if err := m.emit(next); err != nil {
		return cur, err
	}
	m.appts[id] = next
	key := cur.SlotKey()
	if !next.Status.Holding() && m.active[key] == id {
		delete(m.active, key)
	}
	return next, nil
}

func (m *Memory) SetPaymentRef(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Errorf(model.KindNotFound, "appointment %s not found", id)
	}
	a.PaymentRef = ref
	a.UpdatedAt = m.now().UTC()
	m.appts[id] = a
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, model.Errorf(model.KindNotFound, "appointment %s not found", id)
	}
	return a, nil
}

func (m *Memory) ListAppointments(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			return false
		}
		if f.PatientID != "" && a.PatientID != f.PatientID {
			return false
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && a.Date.After(f.To) {
			return false
		}
		return true
	}, clampLimit(f.Limit)), nil
}

func (m *Memory) ListHoldingForDoctor(_ context.Context, doctorID string, from, to model.Date) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return a.DoctorID == doctorID && a.Status.Holding() && !a.Date.Before(from) && !a.Date.After(to)
	}, 0), nil
}

func (m *Memory) ListHoldingOnDate(_ context.Context, date model.Date) ([]model.Appointment, error) {
	return m.filter(func(a model.Appointment) bool {
		return a.Date == date && a.Status.Holding()
	}, 0), nil
}

func (m *Memory) ListStalePending(_ context.Context, method model.PaymentMethod, createdBefore time.Time, limit int) ([]model.Appointment, error) {
	out := m.filter(func(a model.Appointment) bool {
		return a.Status == model.StatusPending && a.PaymentMethod == method && !a.CreatedAt.After(createdBefore)
	}, 0)
	slices.SortFunc(out, func(x, y model.Appointment) int { return x.CreatedAt.Compare(y.CreatedAt) })
	if limit := clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a copy of every event emitted so far.
func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

func (m *Memory) filter(keep func(model.Appointment) bool, limit int) []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Appointment{}
	for _, a := range m.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, compareAppointments)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func compareAppointments(x, y model.Appointment) int {
	if c := x.Date.Time().Compare(y.Date.Time()); c != 0 {
		return c
	}
	if c := strings.Compare(x.Slot, y.Slot); c != 0 {
		return c
	}
	return x.CreatedAt.Compare(y.CreatedAt)
}

func (m *Memory) emit(a model.Appointment) error {
	evt, err := outbox.AppointmentEvent(a, m.now())
	if err != nil {
		return err
	}
	m.events = append(m.events, evt)
	return nil
}
