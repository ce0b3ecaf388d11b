package availability

import "github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"

type DayWindow struct {
	Date      model.Date `json:"date"`
	FreeSlots []string   `json:"free_slots"`
}

// Window lists every candidate date in the horizon with its free slots. Dates with nothing free
// stay in the list with an empty slot set.
func Window(doctor model.Doctor, today model.Date, horizonDays int, idx *ConflictIndex) []DayWindow {
	out := []DayWindow{}
	for d := range CandidateDates(doctor, today, horizonDays) {
		out = append(out, DayWindow{Date: d, FreeSlots: idx.FreeSlots(doctor, d)})
	}
	return out
}
