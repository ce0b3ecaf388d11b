package payments

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook handles Stripe events (no JWT auth; signature verification is the auth).
type StripeWebhook struct {
	secret    string
	tolerance time.Duration
	proc      *Processor
	logger    *slog.Logger
}

func NewStripeWebhook(secret string, tolerance time.Duration, proc *Processor, logger *slog.Logger) *StripeWebhook {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhook{secret: strings.TrimSpace(secret), tolerance: tolerance, proc: proc, logger: logger}
}

var stripeOutcomes = map[string]lifecycle.Outcome{
	"payment_intent.succeeded":      lifecycle.OutcomeSuccess,
	"payment_intent.payment_failed": lifecycle.OutcomeFailure,
	"payment_intent.canceled":       lifecycle.OutcomeFailure,
}

func (h *StripeWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.secret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	outcome, ok := stripeOutcomes[evtType]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(ResultIgnored)})
		return
	}

	var pi stripe.PaymentIntent
	if evt.Data == nil || json.Unmarshal(evt.Data.Raw, &pi) != nil {
		http.Error(w, "invalid payment intent payload", http.StatusBadRequest)
		return
	}
	appointmentID := pi.Metadata["appointment_id"]
	if appointmentID == "" {
		h.logger.Warn("stripe payment intent without appointment_id", "provider_event_id", evt.ID, "payment_intent", pi.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": string(ResultIgnored)})
		return
	}

	h.logger.Info("stripe event received",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"payment_intent", pi.ID,
		"appointment_id", appointmentID,
	)
	res, err := h.proc.Apply(r.Context(), "stripe", evt.ID, evtType, appointmentID,
		lifecycle.PaymentSignal{Outcome: outcome, Channel: model.PaymentCard, Ref: pi.ID})
	if err != nil {
		h.logger.Error("stripe event processing failed", "err", err, "provider_event_id", evt.ID)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(res)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
