// Package apperr implements the three-way error partition from §7: client
// errors, transient errors, and invariant violations. Callers dispatch on
// these with errors.As rather than string matching, the way pronitdas's
// rules.RulesError and the teacher's deprecated-constructor error paths do.
package apperr

import "fmt"

// Code identifies a stable, caller-facing client error reason.
type Code string

const (
	CodeRoomNotFound          Code = "room_not_found"
	CodeNotYourTurn           Code = "not_your_turn"
	CodeInsufficientChips     Code = "insufficient_chips"
	CodeBetBelowMinimum       Code = "bet_below_minimum"
	CodeIllegalPhase          Code = "illegal_phase"
	CodeInvalidAction         Code = "invalid_action"
	CodeAlreadyInRoom         Code = "already_in_room"
	CodeRoomFull              Code = "room_full"
	CodeRoomNotAcceptingUsers Code = "room_not_accepting_players"
	CodeNotCreator            Code = "not_creator"
	CodeIllegalCheck          Code = "illegal_check"
	CodeSeatNotFound          Code = "seat_not_found"
	CodeDegraded              Code = "room_degraded"
)

// ClientError is a caller-precondition violation (§7): surfaced verbatim to
// the caller, never logged as an error, and leaves state unchanged.
type ClientError struct {
	Code    Code
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client builds a ClientError.
func Client(code Code, format string, args ...any) *ClientError {
	return &ClientError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps an infrastructure failure (§7): persistence write or
// broadcast push failed. The coordinator retries with bounded backoff
// before degrading the room.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient builds a TransientError.
func Transient(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// InvariantViolation marks a bug (§7): pot/contribution mismatch, a turn
// pointer into a folded seat, deck underflow. Fatal for the room: it is
// quarantined and its last good snapshot is preserved.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

// Invariant builds an InvariantViolation.
func Invariant(name, detail string) *InvariantViolation {
	return &InvariantViolation{Invariant: name, Detail: detail}
}
