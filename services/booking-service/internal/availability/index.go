package availability

import "github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"

type dayKey struct {
	doctorID string
	date     model.Date
}

// ConflictIndex maps (doctor, date) to the slots held by pending or confirmed appointments.
// It is a snapshot; the store's uniqueness constraint stays authoritative.
type ConflictIndex struct {
	taken map[dayKey]map[string]struct{}
}

// NewConflictIndex builds the index in one pass. Appointments in a terminal status are skipped.
func NewConflictIndex(appts []model.Appointment) *ConflictIndex {
	idx := &ConflictIndex{taken: make(map[dayKey]map[string]struct{})}
	for _, a := range appts {
		if a.Status.Holding() {
			idx.Hold(a.DoctorID, a.Date, a.Slot)
		}
	}
	return idx
}

func (idx *ConflictIndex) IsSlotTaken(doctorID string, date model.Date, slot string) bool {
	_, ok := idx.taken[dayKey{doctorID, date}][slot]
	return ok
}

// FreeSlots returns the doctor's hours that are not taken on date, in declared order.
// Repeated labels in AvailableHours appear once.
func (idx *ConflictIndex) FreeSlots(doctor model.Doctor, date model.Date) []string {
	taken := idx.taken[dayKey{doctor.ID, date}]
	free := make([]string, 0, len(doctor.AvailableHours))
	seen := make(map[string]struct{}, len(doctor.AvailableHours))
	for _, h := range doctor.AvailableHours {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if _, busy := taken[h]; !busy {
			free = append(free, h)
		}
	}
	return free
}

// IsFullyBooked is true only when the doctor declares hours and every one of them is taken.
func (idx *ConflictIndex) IsFullyBooked(doctor model.Doctor, date model.Date) bool {
	if len(doctor.AvailableHours) == 0 {
		return false
	}
	return len(idx.FreeSlots(doctor, date)) == 0
}

func (idx *ConflictIndex) Hold(doctorID string, date model.Date, slot string) {
	k := dayKey{doctorID, date}
	slots, ok := idx.taken[k]
	if !ok {
		slots = make(map[string]struct{})
		idx.taken[k] = slots
	}
	slots[slot] = struct{}{}
}

func (idx *ConflictIndex) Release(doctorID string, date model.Date, slot string) {
	k := dayKey{doctorID, date}
	delete(idx.taken[k], slot)
	if len(idx.taken[k]) == 0 {
		delete(idx.taken, k)
	}
}

// Apply keeps the index in step with a status change of a.
func (idx *ConflictIndex) Apply(a model.Appointment) {
	if a.Status.Holding() {
		idx.Hold(a.DoctorID, a.Date, a.Slot)
		return
	}
	idx.Release(a.DoctorID, a.Date, a.Slot)
}
