package model

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Holding statuses occupy their (doctor, date, slot).
func (s Status) Holding() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	return s.Holding() || s.Terminal()
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile-money"
	PaymentCard        PaymentMethod = "card"
	PaymentNone        PaymentMethod = "none"
)

// ParsePaymentMethod accepts the wire names case-insensitively; empty means none.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return PaymentNone, nil
	case PaymentCash, PaymentMobileMoney, PaymentCard, PaymentNone:
		return m, nil
	case "mobile_money", "mobilemoney":
		return PaymentMobileMoney, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", raw)
	}
}

// PrePaid methods are confirmed by an external payment signal.
func (m PaymentMethod) PrePaid() bool {
	return m == PaymentCard
}

type Appointment struct {
	ID            string
	DoctorID      string
	PatientID     string
	Date          Date
	Slot          string
	Status        Status
	PaymentMethod PaymentMethod
	TotalAmount   float64
	PaymentRef    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SlotKey identifies the bookable unit guarded by the no-double-booking rule.
type SlotKey struct {
	DoctorID string
	Date     Date
	Slot     string
}

func (a Appointment) SlotKey() SlotKey {
	return SlotKey{DoctorID: a.DoctorID, Date: a.Date, Slot: a.Slot}
}

// AppointmentFilter narrows a listing. Empty fields do not filter; From and To are inclusive.
type AppointmentFilter struct {
	DoctorID  string
	PatientID string
	From      Date
	To        Date
	Limit     int
}

// PaymentSession is what a card gateway hands back when a payment is started.
type PaymentSession struct {
	Ref          string
	ClientSecret string
}
