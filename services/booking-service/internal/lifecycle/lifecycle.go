// Package lifecycle owns every status change an appointment can go through.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionFail     Action = "fail"
)

func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionConfirm, ActionCancel, ActionComplete, ActionFail:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", raw)
	}
}

type Actor string

const (
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
	ActorAdmin   Actor = "admin"
	ActorPayment Actor = "payment"
	ActorSystem  Actor = "system"
)

// Request describes one attempted transition. ActorID is the caller's user id and is compared
// with the appointment's patient or doctor for ownership checks. Today is the clinic's current
// date; Override lets doctors and admins complete an appointment before its date. Channel and
// PaymentRef describe a payment signal and are only read for ActorPayment.
type Request struct {
	Action     Action
	Actor      Actor
	ActorID    string
	Today      model.Date
	Override   bool
	Channel    model.PaymentMethod
	PaymentRef string
}

type edge struct {
	from   model.Status
	action Action
}

type rule struct {
	to     model.Status
	actors func(model.Appointment, Request) bool
}

var table = map[edge]rule{
	{model.StatusPending, ActionConfirm}:    {model.StatusConfirmed, canConfirm},
	{model.StatusPending, ActionCancel}:     {model.StatusCancelled, canCancelPending},
	{model.StatusPending, ActionFail}:       {model.StatusFailed, isOneOf(ActorPayment, ActorSystem)},
	{model.StatusConfirmed, ActionCancel}:   {model.StatusCancelled, isStaff},
	{model.StatusConfirmed, ActionComplete}: {model.StatusCompleted, isStaff},
}

// Apply returns a copy of appt moved along the requested edge. The input is never modified, so
// on any error the caller still holds the unchanged appointment.
func Apply(appt model.Appointment, req Request) (model.Appointment, error) {
	r, ok := table[edge{appt.Status, req.Action}]
	if ok && req.Actor == ActorPayment && !signalMatches(appt, req) {
		ok = false
	}
	if !ok {
		return appt, model.Errorf(model.KindInvalidTransition,
			"cannot %s an appointment that is %s", req.Action, appt.Status)
	}
	if !r.actors(appt, req) {
		return appt, model.Errorf(model.KindForbidden,
			"%s may not %s this appointment", req.Actor, req.Action)
	}
	if req.Action == ActionComplete && !req.Override && !appt.Date.Before(req.Today) {
		return appt, model.Errorf(model.KindInvalidTransition,
			"appointment on %s cannot be completed before its date has passed", appt.Date)
	}
	next := appt
	next.Status = r.to
	return next, nil
}

// Allowed lists the actions the table accepts from status, whoever the actor is.
func Allowed(status model.Status) []Action {
	var out []Action
	for _, a := range []Action{ActionConfirm, ActionCancel, ActionComplete, ActionFail} {
		if _, ok := table[edge{status, a}]; ok {
			out = append(out, a)
		}
	}
	return out
}

// InitialStatus is the status a new appointment starts in. Every method begins pending; cash
// and mobile-money wait for staff or a phone payment, card waits for the gateway.
func InitialStatus(model.PaymentMethod) model.Status {
	return model.StatusPending
}

// isStaff admits admins, and doctors acting on their own appointments.
func isStaff(appt model.Appointment, req Request) bool {
	if req.Actor == ActorAdmin {
		return true
	}
	return req.Actor == ActorDoctor && req.ActorID != "" && req.ActorID == appt.DoctorID
}

// paidExternally methods are the only ones a payment signal may move.
func paidExternally(m model.PaymentMethod) bool {
	return m == model.PaymentCard || m == model.PaymentMobileMoney
}

// signalMatches ties a payment signal to the channel and, when both sides know it, the gateway
// reference the appointment was booked with.
func signalMatches(appt model.Appointment, req Request) bool {
	if !paidExternally(appt.PaymentMethod) {
		return false
	}
	if req.Channel != "" && req.Channel != appt.PaymentMethod {
		return false
	}
	return req.PaymentRef == "" || appt.PaymentRef == "" || req.PaymentRef == appt.PaymentRef
}

func isOneOf(actors ...Actor) func(model.Appointment, Request) bool {
	return func(_ model.Appointment, req Request) bool {
		for _, a := range actors {
			if req.Actor == a {
				return true
			}
		}
		return false
	}
}

func canConfirm(appt model.Appointment, req Request) bool {
	switch req.Actor {
	case ActorPayment:
		return true
	case ActorDoctor, ActorAdmin:
		// Card appointments are confirmed by the gateway only.
		return appt.PaymentMethod != model.PaymentCard && isStaff(appt, req)
	default:
		return false
	}
}

func canCancelPending(appt model.Appointment, req Request) bool {
	if req.Actor == ActorPatient {
		return req.ActorID != "" && req.ActorID == appt.PatientID
	}
	return isStaff(appt, req)
}

// ExpiryPolicy bounds how long a pending appointment may wait for its payment signal.
// A zero duration never expires.
type ExpiryPolicy struct {
	Card        time.Duration
	MobileMoney time.Duration
}

func (p ExpiryPolicy) TTL(method model.PaymentMethod) time.Duration {
	switch method {
	case model.PaymentCard:
		return p.Card
	case model.PaymentMobileMoney:
		return p.MobileMoney
	default:
		return 0
	}
}

// Expired reports whether a pending appointment has outlived its TTL at now.
func (p ExpiryPolicy) Expired(appt model.Appointment, now time.Time) bool {
	if appt.Status != model.StatusPending {
		return false
	}
	ttl := p.TTL(appt.PaymentMethod)
	if ttl <= 0 {
		return false
	}
	return !now.Before(appt.CreatedAt.Add(ttl))
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func ParseOutcome(raw string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(raw))); o {
	case OutcomeSuccess, OutcomeFailure:
		return o, nil
	default:
		return "", fmt.Errorf("unknown payment outcome %q", raw)
	}
}

// PaymentSignal is one gateway result for an appointment. Channel is the payment method the
// gateway settles; Ref is the gateway's own reference when it sends one.
type PaymentSignal struct {
	Outcome Outcome
	Channel model.PaymentMethod
	Ref     string
}

// Request builds the transition the signal drives.
func (s PaymentSignal) Request() Request {
	return Request{
		Action:     PaymentAction(s.Outcome),
		Actor:      ActorPayment,
		Channel:    s.Channel,
		PaymentRef: s.Ref,
	}
}

// PaymentAction maps a gateway outcome to the action the payment actor drives.
func PaymentAction(o Outcome) Action {
	if o == OutcomeSuccess {
		return ActionConfirm
	}
	return ActionFail
}
