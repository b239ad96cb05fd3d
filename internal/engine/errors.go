package engine

import (
	"errors"
)

// Error kinds. Every failure surfaced to a caller wraps exactly one of
// these; any error aborts and rolls back the entire action.
var (
	// ErrUnauthorized: non-governance config update, non-operator harvest,
	// or a callback from outside the engine.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument: out-of-bounds config, zero repay against live
	// debt, unrecognized swap offer asset, wrong shipped funds.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingPrecondition: an operation found nothing to work with, or
	// a liquidation targeted a healthy position.
	ErrMissingPrecondition = errors.New("missing precondition")

	// ErrArithmetic: underflow on a unit or amount subtraction, or an
	// unexpectedly zero denominator.
	ErrArithmetic = errors.New("arithmetic fault")

	// ErrExternal: a collaborator rejected a message or its receipt lacked
	// an expected attribute.
	ErrExternal = errors.New("external failure")

	// ErrInvariant: should-be-unreachable states, such as an LTV above the
	// threshold at the end of an action or a dirty transient-user slot at
	// action start.
	ErrInvariant = errors.New("invariant violation")
)

// Kind names the error class for logs and HTTP mapping.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrMissingPrecondition):
		return "missing_precondition"
	case errors.Is(err, ErrArithmetic):
		return "arithmetic_fault"
	case errors.Is(err, ErrExternal):
		return "external_failure"
	case errors.Is(err, ErrInvariant):
		return "invariant_violation"
	default:
		return "internal"
	}
}
