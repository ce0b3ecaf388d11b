// Package booking orchestrates validation, creation and status changes of appointments.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

type Directory interface {
	ListDoctors(ctx context.Context) ([]model.Doctor, error)
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
}

// Store is the appointment store. InsertAppointment must fail with ErrSlotAlreadyBooked when a
// holding appointment already occupies the slot, atomically with the insert.
type Store interface {
	InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, decide func(model.Appointment) (model.Appointment, error)) (model.Appointment, error)
	SetPaymentRef(ctx context.Context, id, ref string) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	ListHoldingForDoctor(ctx context.Context, doctorID string, from, to model.Date) ([]model.Appointment, error)
	ListHoldingOnDate(ctx context.Context, date model.Date) ([]model.Appointment, error)
	ListStalePending(ctx context.Context, method model.PaymentMethod, createdBefore time.Time, limit int) ([]model.Appointment, error)
}

// StatusCache keeps computed availability per date. Invalidate drops the entry and bumps the
// date's generation; Set must store nothing when the generation no longer equals version, so
// a result computed across a booking never outlives it.
type StatusCache interface {
	Get(ctx context.Context, date model.Date) ([]availability.DayStatus, bool, error)
	Generation(ctx context.Context, date model.Date) (int64, error)
	Set(ctx context.Context, date model.Date, version int64, statuses []availability.DayStatus) error
	Invalidate(ctx context.Context, date model.Date) error
}

// PaymentStarter opens a card payment for a freshly booked appointment.
type PaymentStarter interface {
	Start(ctx context.Context, a model.Appointment) (model.PaymentSession, error)
}

type Metrics interface {
	Booking(result string)
	Transition(action, result string)
	Expired(n int)
	CacheLookup(hit bool)
}

type Config struct {
	Location           *time.Location
	DefaultHorizonDays int
	MaxHorizonDays     int
	Expiry             lifecycle.ExpiryPolicy
	Now                func() time.Time
}

type Service struct {
	directory Directory
	store     Store
	logger    *slog.Logger
	cfg       Config

	cache    StatusCache
	payments PaymentStarter
	metrics  Metrics
}

type Option func(*Service)

func WithCache(c StatusCache) Option       { return func(s *Service) { s.cache = c } }
func WithPayments(p PaymentStarter) Option { return func(s *Service) { s.payments = p } }
func WithMetrics(m Metrics) Option         { return func(s *Service) { s.metrics = m } }

func NewService(directory Directory, store Store, logger *slog.Logger, cfg Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultHorizonDays <= 0 {
		cfg.DefaultHorizonDays = 30
	}
	if cfg.MaxHorizonDays < cfg.DefaultHorizonDays {
		cfg.MaxHorizonDays = cfg.DefaultHorizonDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Service{directory: directory, store: store, logger: logger, cfg: cfg, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current date in the clinic's timezone.
func (s *Service) Today() model.Date {
	return model.Today(s.cfg.Location, s.cfg.Now())
}

type Request struct {
	PatientID     string
	DoctorID      string
	Date          string
	Slot          string
	PaymentMethod string
}

type Booking struct {
	Appointment  model.Appointment
	ClientSecret string
}

// Book validates and creates an appointment. Card bookings also open a payment with the
// gateway; if that fails the appointment is failed at once so the slot is released.
func (s *Service) Book(ctx context.Context, req Request) (Booking, error) {
	b, err := s.book(ctx, req)
	switch kind := model.KindOf(err); {
	case err == nil:
		s.metrics.Booking("created")
	case kind != "":
		s.metrics.Booking(string(kind))
	default:
		s.metrics.Booking("error")
	}
	return b, err
}

func (s *Service) book(ctx context.Context, req Request) (Booking, error) {
	if req.PatientID == "" {
		return Booking{}, model.ErrUnauthenticated
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return Booking{}, model.Errorf(model.KindInvalidDate, "date must look like 2006-01-02")
	}
	method, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return Booking{}, model.Errorf(model.KindInvalidRequest, "payment method %q is not accepted", req.PaymentMethod)
	}
	doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return Booking{}, err
	}
	existing, err := s.store.ListHoldingForDoctor(ctx, doctor.ID, date, date)
	if err != nil {
		return Booking{}, fmt.Errorf("list appointments: %w", err)
	}

	intent, err := Validate(doctor, date, req.Slot, req.PatientID, s.Today(), availability.NewConflictIndex(existing))
	if err != nil {
		return Booking{}, err
	}

	appt, err := s.store.InsertAppointment(ctx, model.Appointment{
		DoctorID:      intent.Doctor.ID,
		PatientID:     intent.PatientID,
		Date:          intent.Date,
		Slot:          intent.Slot,
		Status:        lifecycle.InitialStatus(method),
		PaymentMethod: method,
		TotalAmount:   intent.TotalAmount,
	})
	if err != nil {
		return Booking{}, err
	}
	s.invalidate(ctx, appt.Date)
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"date", appt.Date.String(),
		"slot", appt.Slot,
		"payment_method", string(appt.PaymentMethod),
	)

	out := Booking{Appointment: appt}
	if method != model.PaymentCard {
		return out, nil
	}
	if s.payments == nil {
		s.logger.Warn("card payments not configured; appointment waits for an external payment signal", "appointment_id", appt.ID)
		return out, nil
	}
	session, err := s.payments.Start(ctx, appt)
	if err != nil {
		s.logger.Error("card payment start failed", "err", err, "appointment_id", appt.ID)
		if _, ferr := s.transition(ctx, appt.ID, lifecycle.Request{Action: lifecycle.ActionFail, Actor: lifecycle.ActorSystem}); ferr != nil {
			s.logger.Error("failing appointment after payment error failed", "err", ferr, "appointment_id", appt.ID)
		}
		return Booking{}, fmt.Errorf("start card payment: %w", err)
	}
	if err := s.store.SetPaymentRef(ctx, appt.ID, session.Ref); err != nil {
		return Booking{}, fmt.Errorf("store payment ref: %w", err)
	}
	out.Appointment.PaymentRef = session.Ref
	out.ClientSecret = session.ClientSecret
	return out, nil
}

type TransitionRequest struct {
	AppointmentID string
	Action        lifecycle.Action
	Actor         lifecycle.Actor
	ActorID       string
	Override      bool
}

// Transition applies one lifecycle action. The read, check and write happen under the store's
// row lock, so two racing actions cannot both succeed from the same state.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (model.Appointment, error) {
	return s.transition(ctx, req.AppointmentID, lifecycle.Request{
		Action:   req.Action,
		Actor:    req.Actor,
		ActorID:  req.ActorID,
		Override: req.Override,
	})
}

func (s *Service) transition(ctx context.Context, id string, req lifecycle.Request) (model.Appointment, error) {
	req.Today = s.Today()
	appt, err := s.store.UpdateAppointmentStatus(ctx, id, func(cur model.Appointment) (model.Appointment, error) {
		return lifecycle.Apply(cur, req)
	})
	if err != nil {
		result := string(model.KindOf(err))
		if result == "" {
			result = "error"
		}
		s.metrics.Transition(string(req.Action), result)
		return appt, err
	}
	s.metrics.Transition(string(req.Action), string(appt.Status))
	s.invalidate(ctx, appt.Date)
	s.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"action", string(req.Action),
		"actor", string(req.Actor),
		"status", string(appt.Status),
	)
	return appt, nil
}

// OnPaymentResult applies a gateway outcome to a pending appointment paid through the
// signal's channel.
func (s *Service) OnPaymentResult(ctx context.Context, appointmentID string, signal lifecycle.PaymentSignal) (model.Appointment, error) {
	return s.transition(ctx, appointmentID, signal.Request())
}

// ExpireStale fails pending appointments whose payment window has closed at now. Appointments
// that change status concurrently are skipped.
func (s *Service) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	expired := 0
	for _, method := range []model.PaymentMethod{model.PaymentCard, model.PaymentMobileMoney} {
		ttl := s.cfg.Expiry.TTL(method)
		if ttl <= 0 {
			continue
		}
		stale, err := s.store.ListStalePending(ctx, method, now.Add(-ttl), limit)
		if err != nil {
			return expired, fmt.Errorf("list stale %s appointments: %w", method, err)
		}
		for _, a := range stale {
			if !s.cfg.Expiry.Expired(a, now) {
				continue
			}
			_, err := s.transition(ctx, a.ID, lifecycle.Request{Action: lifecycle.ActionFail, Actor: lifecycle.ActorSystem})
			switch {
			case err == nil:
				expired++
			case model.KindOf(err) == model.KindInvalidTransition:
			default:
				return expired, err
			}
		}
	}
	s.metrics.Expired(expired)
	return expired, nil
}

// DoctorWindow lists bookable dates and their free slots from today. days <= 0 uses the
// configured default and larger values are capped.
func (s *Service) DoctorWindow(ctx context.Context, doctorID string, days int) ([]availability.DayWindow, error) {
	if days <= 0 {
		days = s.cfg.DefaultHorizonDays
	}
	if days > s.cfg.MaxHorizonDays {
		days = s.cfg.MaxHorizonDays
	}
	doctor, err := s.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	appts, err := s.store.ListHoldingForDoctor(ctx, doctor.ID, today, today.AddDays(days-1))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return availability.Window(doctor, today, days, availability.NewConflictIndex(appts)), nil
}

// BulkAvailability returns the roster's flags for date, reading through the cache when one is
// configured. Cache failures fall back to computing the result. The generation is read before
// the store so an invalidation during the computation keeps the result out of the cache.
func (s *Service) BulkAvailability(ctx context.Context, date model.Date) ([]availability.DayStatus, error) {
	cacheable := false
	var version int64
	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, date)
		if err != nil {
			s.logger.Warn("availability cache read failed", "err", err)
		}
		s.metrics.CacheLookup(hit)
		if hit {
			return cached, nil
		}
		if version, err = s.cache.Generation(ctx, date); err != nil {
			s.logger.Warn("availability cache generation read failed", "err", err)
		} else {
			cacheable = true
		}
	}

	doctors, err := s.directory.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	appts, err := s.store.ListHoldingOnDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	statuses := availability.Aggregate(doctors, date, availability.NewConflictIndex(appts))

	if cacheable {
		if err := s.cache.Set(ctx, date, version, statuses); err != nil {
			s.logger.Warn("availability cache write failed", "err", err)
		}
	}
	return statuses, nil
}

func (s *Service) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, model.Errorf(model.KindInvalidDate, "to must not be before from")
	}
	return s.store.ListAppointments(ctx, f)
}

func (s *Service) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) invalidate(ctx context.Context, date model.Date) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, date); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("availability cache invalidate failed", "err", err, "date", date.String())
	}
}

type noopMetrics struct{}

func (noopMetrics) Booking(string)            {}
func (noopMetrics) Transition(string, string) {}
func (noopMetrics) Expired(int)               {}
func (noopMetrics) CacheLookup(bool)          {}
