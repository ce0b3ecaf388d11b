package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

const (
	SignatureHeader = "X-Signature"
	callbackType    = "payments.mobile_money.result"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret string, body []byte, signature string) bool {
	want, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Callback receives mobile-money results pushed by the payment aggregator.
type Callback struct {
	secret string
	proc   *Processor
	logger *slog.Logger
}

func NewCallback(secret string, proc *Processor, logger *slog.Logger) *Callback {
	return &Callback{secret: strings.TrimSpace(secret), proc: proc, logger: logger}
}

func (h *Callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" {
		http.Error(w, "payment callback not configured", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if !VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var msg ResultMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	outcome, err := lifecycle.ParseOutcome(msg.Outcome)
	if err != nil || msg.EventID == "" || msg.AppointmentID == "" {
		http.Error(w, "event_id, appointment_id and outcome are required", http.StatusBadRequest)
		return
	}

	res, err := h.proc.Apply(r.Context(), "callback", msg.EventID, callbackType, msg.AppointmentID,
		lifecycle.PaymentSignal{Outcome: outcome, Channel: model.PaymentMobileMoney})
	if err != nil {
		h.logger.Error("payment callback processing failed", "err", err, "event_id", msg.EventID)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(res)})
}
