// Package inbox remembers which inbound payment events were already applied.
package inbox

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/clinicportal/libs/db"
)

// Repository is the Postgres inbox.
type Repository struct {
	conn db.Conn
}

func NewRepository(conn db.Conn) *Repository {
	return &Repository{conn: conn}
}

// Record stores eventID and reports whether it was new.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err, "") {
		return false, nil
	}
	return false, err
}

// Release forgets eventID so a redelivery is processed again. Used when applying the event
// failed after it was recorded.
func (r *Repository) Release(ctx context.Context, eventID string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}

// Memory is a process-local inbox for the memory store driver.
type Memory struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]string)}
}

func (m *Memory) Record(_ context.Context, eventID string, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = eventType
	return true, nil
}

func (m *Memory) Release(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}
