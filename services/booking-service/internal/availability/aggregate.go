package availability

import "github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"

type DayStatus struct {
	DoctorID          string `json:"doctor_id"`
	FullyBooked       bool   `json:"fully_booked"`
	NotAvailableToday bool   `json:"not_available_today"`
}

// Aggregate computes the per-doctor flags for one date in roster order. idx should hold the
// appointments of every doctor on that date. A doctor who does not work on date is never
// reported as fully booked.
func Aggregate(doctors []model.Doctor, date model.Date, idx *ConflictIndex) []DayStatus {
	out := make([]DayStatus, 0, len(doctors))
	for _, doc := range doctors {
		st := DayStatus{DoctorID: doc.ID, NotAvailableToday: !IsDayAvailable(doc, date)}
		if !st.NotAvailableToday {
			st.FullyBooked = idx.IsFullyBooked(doc, date)
		}
		out = append(out, st)
	}
	return out
}
