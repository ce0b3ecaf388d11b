package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadDoctorSeed(t *testing.T) {
	docs, err := ReadDoctorSeed(strings.NewReader(`[
		{"id": " doc-1 ", "name": "Dr. One", "available_days": "Monday, Friday", "available_hours": ["09:00", "10:00"], "payment_per_hour": 50}
	]`))
	if err != nil {
		t.Fatalf("ReadDoctorSeed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-1" || len(docs[0].AvailableHours) != 2 || docs[0].PaymentPerHour != 50 {
		t.Fatalf("unexpected doctors: %+v", docs)
	}
}

func TestReadDoctorSeedRejectsBadEntries(t *testing.T) {
	for name, body := range map[string]string{
		"missing id":    `[{"name": "x"}]`,
		"negative fee":  `[{"id": "d", "payment_per_hour": -1}]`,
		"unknown field": `[{"id": "d", "hours": []}]`,
		"not an array":  `{"id": "d"}`,
	} {
		if _, err := ReadDoctorSeed(strings.NewReader(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadDoctorSeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doctors.json")
	if err := os.WriteFile(path, []byte(`[{"id": "d"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	docs, err := LoadDoctorSeed(path)
	if err != nil || len(docs) != 1 {
		t.Fatalf("LoadDoctorSeed = %v, %v", docs, err)
	}
	if _, err := LoadDoctorSeed(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
