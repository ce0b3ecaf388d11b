package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const AggregateAppointment = "appointment"

// AppointmentEventType is booking.appointment.<status>.v1.
func AppointmentEventType(s model.Status) string {
	return "booking.appointment." + string(s) + ".v1"
}

type appointmentPayload struct {
	AppointmentID string  `json:"appointment_id"`
	DoctorID      string  `json:"doctor_id"`
	PatientID     string  `json:"patient_id"`
	Date          string  `json:"date"`
	Slot          string  `json:"slot"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"payment_method"`
	TotalAmount   float64 `json:"total_amount"`
	OccurredAt    string  `json:"occurred_at"`
}

// AppointmentEvent snapshots a in its current status.
func AppointmentEvent(a model.Appointment, at time.Time) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date.String(),
		Slot:          a.Slot,
		Status:        string(a.Status),
		PaymentMethod: string(a.PaymentMethod),
		TotalAmount:   a.TotalAmount,
		OccurredAt:    at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   a.ID,
		EventType:     AppointmentEventType(a.Status),
		Payload:       payload,
	}, nil
}
