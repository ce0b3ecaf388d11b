package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicportal/libs/auth"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

type Booker interface {
	Book(ctx context.Context, req booking.Request) (booking.Booking, error)
	Transition(ctx context.Context, req booking.TransitionRequest) (model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	DoctorWindow(ctx context.Context, doctorID string, days int) ([]availability.DayWindow, error)
	BulkAvailability(ctx context.Context, date model.Date) ([]availability.DayStatus, error)
	Today() model.Date
}

type BookingHandler struct {
	svc    Booker
	logger *slog.Logger
}

func NewBookingHandler(svc Booker, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type bookRequest struct {
	DoctorID      string `json:"doctor_id"`
	Date          string `json:"date"`
	Slot          string `json:"slot"`
	PaymentMethod string `json:"payment_method"`
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Override      bool   `json:"override"`
}

type appointmentResponse struct {
	ID             string   `json:"appointment_id"`
	DoctorID       string   `json:"doctor_id"`
	PatientID      string   `json:"patient_id"`
	Date           string   `json:"date"`
	Slot           string   `json:"slot"`
	Status         string   `json:"status"`
	PaymentMethod  string   `json:"payment_method"`
	TotalAmount    float64  `json:"total_amount"`
	PaymentRef     string   `json:"payment_ref,omitempty"`
	ClientSecret   string   `json:"client_secret,omitempty"`
	AllowedActions []string `json:"allowed_actions"`
	CreatedAt      string   `json:"created_at"`
}

func toResponse(a model.Appointment) appointmentResponse {
	actions := []string{}
	for _, act := range lifecycle.Allowed(a.Status) {
		actions = append(actions, string(act))
	}
	return appointmentResponse{
		ID:             a.ID,
		DoctorID:       a.DoctorID,
		PatientID:      a.PatientID,
		Date:           a.Date.String(),
		Slot:           a.Slot,
		Status:         string(a.Status),
		PaymentMethod:  string(a.PaymentMethod),
		TotalAmount:    a.TotalAmount,
		PaymentRef:     a.PaymentRef,
		AllowedActions: actions,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Book handles POST /api/v1/appointments/book. The patient is the authenticated caller.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if auth.UserIDFromContext(r.Context()) == "" {
		h.writeError(w, r, model.Errorf(model.KindUnauthenticated, "sign in to book an appointment"))
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.DoctorID) == "" || strings.TrimSpace(req.Slot) == "" {
		http.Error(w, "doctor_id, date and slot are required", http.StatusBadRequest)
		return
	}

	b, err := h.svc.Book(r.Context(), booking.Request{
		PatientID:     auth.UserIDFromContext(r.Context()),
		DoctorID:      strings.TrimSpace(req.DoctorID),
		Date:          strings.TrimSpace(req.Date),
		Slot:          strings.TrimSpace(req.Slot),
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := toResponse(b.Appointment)
	resp.ClientSecret = b.ClientSecret
	writeJSON(w, http.StatusCreated, resp)
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, lifecycle.ActionConfirm)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, lifecycle.ActionCancel)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, lifecycle.ActionComplete)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, action lifecycle.Action) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, model.Errorf(model.KindUnauthenticated, "sign in to change an appointment"))
		return
	}
	actor, ok := actorForRole(p.Role)
	if !ok {
		h.writeError(w, r, model.ErrForbidden)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	if req.Override && actor == lifecycle.ActorPatient {
		h.writeError(w, r, model.ErrForbidden)
		return
	}

	appt, err := h.svc.Transition(r.Context(), booking.TransitionRequest{
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		Action:        action,
		Actor:         actor,
		ActorID:       p.UserID,
		Override:      req.Override,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// List handles GET /api/v1/appointments. Patients only see their own appointments and doctors
// only their own schedule; admins may filter freely.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, model.Errorf(model.KindUnauthenticated, "sign in to view appointments"))
		return
	}

	q := r.URL.Query()
	f := model.AppointmentFilter{
		DoctorID:  strings.TrimSpace(q.Get("doctor_id")),
		PatientID: strings.TrimSpace(q.Get("patient_id")),
	}
	switch p.Role {
	case auth.RoleAdmin:
	case auth.RoleDoctor:
		f.DoctorID = p.UserID
	default:
		f.PatientID = p.UserID
	}
	var err error
	if f.From, err = optionalDate(q.Get("from")); err != nil {
		h.writeError(w, r, err)
		return
	}
	if f.To, err = optionalDate(q.Get("to")); err != nil {
		h.writeError(w, r, err)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	appts, err := h.svc.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Slots handles GET /api/v1/public/slots?doctor_id=&days=.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	doctorID := strings.TrimSpace(q.Get("doctor_id"))
	if doctorID == "" {
		http.Error(w, "doctor_id required", http.StatusBadRequest)
		return
	}
	days := 0
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = n
	}

	win, err := h.svc.DoctorWindow(r.Context(), doctorID, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "days": win})
}

// Availability handles GET /api/v1/public/availability?date=; date defaults to today.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, err := optionalDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if date.IsZero() {
		date = h.svc.Today()
	}
	statuses, err := h.svc.BulkAvailability(r.Context(), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.String(), "doctors": statuses})
}

func actorForRole(role string) (lifecycle.Actor, bool) {
	switch role {
	case auth.RolePatient, "":
		return lifecycle.ActorPatient, true
	case auth.RoleDoctor:
		return lifecycle.ActorDoctor, true
	case auth.RoleAdmin:
		return lifecycle.ActorAdmin, true
	default:
		return "", false
	}
}

func optionalDate(raw string) (model.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Date{}, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, model.Errorf(model.KindInvalidDate, "date must look like 2006-01-02")
	}
	return d, nil
}

var kindStatus = map[model.Kind]int{
	model.KindUnauthenticated:          http.StatusUnauthorized,
	model.KindForbidden:                http.StatusForbidden,
	model.KindNotFound:                 http.StatusNotFound,
	model.KindInvalidDate:              http.StatusBadRequest,
	model.KindInvalidRequest:           http.StatusBadRequest,
	model.KindDoctorNotAvailableOnDate: http.StatusUnprocessableEntity,
	model.KindInvalidSlot:              http.StatusUnprocessableEntity,
	model.KindSlotAlreadyBooked:        http.StatusConflict,
	model.KindInvalidTransition:        http.StatusConflict,
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError renders business failures with their own status and message. Anything else is
// logged and hidden behind a generic 500.
func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *model.Error
	if errors.As(err, &e) {
		status, ok := kindStatus[e.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Error: string(e.Kind), Message: e.Error()})
		return
	}
	h.logger.Error("request failed", "err", err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "something went wrong; try again"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
