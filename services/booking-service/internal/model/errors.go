package model

import (
	"errors"
	"fmt"
)

// Kind classifies expected business outcomes. Errors without a kind are infrastructure faults.
type Kind string

const (
	KindUnauthenticated          Kind = "unauthenticated"
	KindInvalidDate              Kind = "invalid_date"
	KindDoctorNotAvailableOnDate Kind = "doctor_not_available_on_date"
	KindInvalidSlot              Kind = "invalid_slot"
	KindSlotAlreadyBooked        Kind = "slot_already_booked"
	KindInvalidTransition        Kind = "invalid_transition"
	KindNotFound                 Kind = "not_found"
	KindForbidden                Kind = "forbidden"
	KindInvalidRequest           Kind = "invalid_request"
)

// Error is a typed business failure. Two Errors match under errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthenticated          = &Error{Kind: KindUnauthenticated, Message: "sign in to book an appointment"}
	ErrInvalidDate              = &Error{Kind: KindInvalidDate, Message: "the requested date is invalid or already in the past"}
	ErrDoctorNotAvailableOnDate = &Error{Kind: KindDoctorNotAvailableOnDate, Message: "the doctor does not see patients on that day; pick another day"}
	ErrInvalidSlot              = &Error{Kind: KindInvalidSlot, Message: "the requested time is not one of the doctor's hours"}
	ErrSlotAlreadyBooked        = &Error{Kind: KindSlotAlreadyBooked, Message: "that time is already booked; pick another slot"}
	ErrInvalidTransition        = &Error{Kind: KindInvalidTransition, Message: "the appointment cannot move to that status"}
	ErrNotFound                 = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden                = &Error{Kind: KindForbidden, Message: "you are not allowed to perform this action"}
	ErrInvalidRequest           = &Error{Kind: KindInvalidRequest, Message: "the request is malformed"}
)

// Errorf builds a kinded error with a specific message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first typed error in err's chain, or "" for faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
