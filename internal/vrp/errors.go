package vrp

import (
	"errors"
	"fmt"
)

// Category sentinels. Every error returned by the model wraps exactly one of
// them, so callers can branch with errors.Is.
var (
	ErrValidation    = errors.New("vrp: validation error")
	ErrConfiguration = errors.New("vrp: configuration error")
)

// Specific causes.
var (
	ErrDuplicateID      = errors.New("duplicate external id")
	ErrUnknownNode      = errors.New("unknown node")
	ErrUnknownRequest   = errors.New("unknown request")
	ErrUnknownVehicle   = errors.New("unknown vehicle")
	ErrNegativeQuantity = errors.New("negative quantity")
	ErrNegativeValue    = errors.New("negative value")
	ErrBadTimeWindow    = errors.New("bad time window")
	ErrNoVehicles       = errors.New("no vehicles")
	ErrNoDistances      = errors.New("no distance matrix")
	ErrNoDurations      = errors.New("no duration matrix")
	ErrNoCoordinates    = errors.New("missing coordinates")
	ErrFrozen           = errors.New("model is frozen")
)

// ValidationError reports bad input data: unknown references, negative
// quantities, malformed windows, duplicate identifiers.
type ValidationError struct {
	Op  string
	Msg string
	Err error
}

func (e *ValidationError) Error() string { return format(e.Op, e.Msg, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConfigurationError reports a model that cannot be solved as configured:
// no vehicles, no matrices, mutation after freezing.
type ConfigurationError struct {
	Op  string
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string { return format(e.Op, e.Msg, e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func format(op, msg string, err error) string {
	switch {
	case msg == "" && err != nil:
		return fmt.Sprintf("vrp: %s: %v", op, err)
	case err == nil:
		return fmt.Sprintf("vrp: %s: %s", op, msg)
	default:
		return fmt.Sprintf("vrp: %s: %s: %v", op, msg, err)
	}
}

func invalid(op string, cause error, msg string, args ...any) error {
	return &ValidationError{Op: op, Msg: fmt.Sprintf(msg, args...), Err: cause}
}

func misconfigured(op string, cause error, msg string, args ...any) error {
	return &ConfigurationError{Op: op, Msg: fmt.Sprintf(msg, args...), Err: cause}
}
