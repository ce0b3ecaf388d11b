package availability

import (
	"strings"
	"time"
)

// WeekdaySet is a bitmask of time.Weekday values.
type WeekdaySet uint8

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekdays reads a free-text, comma separated list of English weekday names.
// Matching ignores case and surrounding whitespace. Tokens that are not a weekday name are
// skipped, so malformed input yields fewer days rather than an error.
func ParseWeekdays(raw string) WeekdaySet {
	var set WeekdaySet
	for _, tok := range strings.Split(raw, ",") {
		if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(tok))]; ok {
			set = set.With(d)
		}
	}
	return set
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet { return s | 1<<uint(d) }

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }

func (s WeekdaySet) Len() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days lists the members Sunday first.
func (s WeekdaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, s.Len())
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return strings.Join(names, ", ")
}
