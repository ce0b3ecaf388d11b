package model

// Doctor is the directory record the scheduling engine reads. AvailableDays is the free-text
// weekday list exactly as entered ("Monday, Wednesday"); AvailableHours are slot labels in the
// order they should be offered.
type Doctor struct {
	ID             string
	Name           string
	AvailableDays  string
	AvailableHours []string
	PaymentPerHour float64
}

// HasHour reports whether slot is one of the doctor's declared labels.
func (d Doctor) HasHour(slot string) bool {
	for _, h := range d.AvailableHours {
		if h == slot {
			return true
		}
	}
	return false
}
