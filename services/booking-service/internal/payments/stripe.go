package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

type intentCreator func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

// StripeStarter opens a PaymentIntent per card appointment. The client secret goes back to the
// patient's browser, which confirms the card with Stripe; the result arrives by webhook.
type StripeStarter struct {
	currency string
	create   intentCreator
}

func NewStripeStarter(secretKey, currency string) *StripeStarter {
	client := &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
	return newStripeStarter(currency, client.New)
}

func newStripeStarter(currency string, create intentCreator) *StripeStarter {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}
	return &StripeStarter{currency: currency, create: create}
}

func (s *StripeStarter) Start(ctx context.Context, a model.Appointment) (model.PaymentSession, error) {
	amount := MinorUnits(a.TotalAmount)
	if amount <= 0 {
		return model.PaymentSession{}, errors.New("appointment has no amount to charge")
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(s.currency),
		Description: stripe.String(fmt.Sprintf("Appointment on %s at %s", a.Date, a.Slot)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("appointment_id", a.ID)
	params.AddMetadata("doctor_id", a.DoctorID)
	params.AddMetadata("patient_id", a.PatientID)
	// Retrying the same appointment reuses the intent instead of charging twice.
	params.SetIdempotencyKey("appointment-" + a.ID)

	pi, err := s.create(params)
	if err != nil {
		return model.PaymentSession{}, fmt.Errorf("create payment intent: %w", err)
	}
	return model.PaymentSession{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// MinorUnits converts a decimal amount to cents.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
