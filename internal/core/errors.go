package core

import "errors"

var (
	// ErrWrongCredential is returned when a password does not match the
	// stored one (user login or room entry).
	ErrWrongCredential = errors.New("wrong credential")
	// ErrValidation is returned when a required field is empty or over limit.
	ErrValidation = errors.New("validation failed")
	// ErrSendInFlight is returned when a send is attempted on a feed whose
	// previous send has not resolved yet. The caller re-triggers, nothing is
	// queued.
	ErrSendInFlight = errors.New("send already in flight")
	// ErrAssist is returned when the text-completion service fails or
	// returns nothing usable.
	ErrAssist = errors.New("assistant unavailable")
)
