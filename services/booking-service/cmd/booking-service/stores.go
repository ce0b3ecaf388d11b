package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/clinicportal/libs/config"
	"github.com/md-rashed-zaman/clinicportal/libs/db"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/migrations"
)

type dedupe interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type doctorSeeder interface {
	UpsertDoctor(ctx context.Context, d model.Doctor) error
}

// stores bundles the persistence side of the process. pool and outboxRepo are nil for the
// in-memory driver, which has no outbox to relay.
type stores struct {
	directory  booking.Directory
	store      booking.Store
	seeder     doctorSeeder
	inbox      dedupe
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func openStores(ctx context.Context, driver string, logger *slog.Logger) (*stores, error) {
	switch driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		mem := storage.NewMemory(nil)
		return &stores{directory: mem, store: mem, seeder: mem, inbox: inbox.NewMemory()}, nil
	case "postgres", "":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	if config.Bool("MIGRATE_ON_START", false) {
		if err := db.Migrate(dbURL, migrations.FS); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}
	pool, err := db.Open(ctx, dbURL, db.PoolOptions{})
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository()
	doctors := storage.NewDoctorRepository(pool)
	return &stores{
		directory:  doctors,
		store:      storage.NewAppointmentRepository(pool, outboxRepo),
		seeder:     doctors,
		inbox:      inbox.NewRepository(pool),
		pool:       pool,
		outboxRepo: outboxRepo,
	}, nil
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *stores) seed(ctx context.Context, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	doctors, err := storage.LoadDoctorSeed(path)
	if err != nil {
		return err
	}
	for _, d := range doctors {
		if err := s.seeder.UpsertDoctor(ctx, d); err != nil {
			return fmt.Errorf("seed doctor %s: %w", d.ID, err)
		}
	}
	logger.Info("doctor directory seeded", "count", len(doctors), "file", path)
	return nil
}
