package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

type seedDoctor struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	AvailableDays  string   `json:"available_days"`
	AvailableHours []string `json:"available_hours"`
	PaymentPerHour float64  `json:"payment_per_hour"`
}

// ReadDoctorSeed decodes a JSON array of doctors. Entries without an id are rejected so a typo
// cannot silently create an unreachable record.
func ReadDoctorSeed(r io.Reader) ([]model.Doctor, error) {
	var raw []seedDoctor
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode doctor seed: %w", err)
	}
	out := make([]model.Doctor, 0, len(raw))
	for i, d := range raw {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("doctor seed entry %d: id required", i)
		}
		if d.PaymentPerHour < 0 {
			return nil, fmt.Errorf("doctor seed entry %s: negative payment_per_hour", id)
		}
		out = append(out, model.Doctor{
			ID:             id,
			Name:           strings.TrimSpace(d.Name),
			AvailableDays:  d.AvailableDays,
			AvailableHours: d.AvailableHours,
			PaymentPerHour: d.PaymentPerHour,
		})
	}
	return out, nil
}

func LoadDoctorSeed(path string) ([]model.Doctor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadDoctorSeed(f)
}
