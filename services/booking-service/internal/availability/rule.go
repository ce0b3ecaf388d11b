package availability

import (
	"iter"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

// IsDayAvailable reports whether the doctor's weekly pattern includes date's weekday.
func IsDayAvailable(doctor model.Doctor, date model.Date) bool {
	return ParseWeekdays(doctor.AvailableDays).Has(date.Weekday())
}

// CandidateDates yields the dates in [today, today+horizonDays) that fall on one of the doctor's
// days. The sequence holds no cursor of its own; ranging over it again starts from today.
func CandidateDates(doctor model.Doctor, today model.Date, horizonDays int) iter.Seq[model.Date] {
	days := ParseWeekdays(doctor.AvailableDays)
	return func(yield func(model.Date) bool) {
		if days == 0 {
			return
		}
		for i := 0; i < horizonDays; i++ {
			d := today.AddDays(i)
			if !days.Has(d.Weekday()) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}
