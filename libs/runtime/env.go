package runtime

import "time"

// Location loads the named IANA zone, falling back to UTC for empty or unknown names.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
