package booking

import (
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

// Intent is a booking that passed validation and may be inserted.
type Intent struct {
	Doctor      model.Doctor
	Date        model.Date
	Slot        string
	PatientID   string
	TotalAmount float64
}

// Validate gates a booking against the doctor's pattern and a snapshot of held slots. Checks
// run in a fixed order and the first failure is returned. Passing is not a reservation: the
// store's uniqueness constraint decides concurrent races.
func Validate(doctor model.Doctor, date model.Date, slot, requesterID string, today model.Date, idx *availability.ConflictIndex) (Intent, error) {
	if requesterID == "" {
		return Intent{}, model.ErrUnauthenticated
	}
	if date.IsZero() || date.Before(today) {
		return Intent{}, model.ErrInvalidDate
	}
	if !availability.IsDayAvailable(doctor, date) {
		return Intent{}, model.Errorf(model.KindDoctorNotAvailableOnDate,
			"the doctor does not see patients on %s; available days: %s",
			date.Weekday(), availability.ParseWeekdays(doctor.AvailableDays))
	}
	if !doctor.HasHour(slot) {
		return Intent{}, model.ErrInvalidSlot
	}
	if idx.IsSlotTaken(doctor.ID, date, slot) {
		return Intent{}, model.Errorf(model.KindSlotAlreadyBooked,
			"%s on %s is already booked; pick another slot", slot, date)
	}
	return Intent{
		Doctor:      doctor,
		Date:        date,
		Slot:        slot,
		PatientID:   requesterID,
		TotalAmount: doctor.PaymentPerHour,
	}, nil
}
