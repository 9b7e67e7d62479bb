package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnknownDevice means the topic identifier matches no device
	ErrUnknownDevice = errors.New("unknown device")
	// ErrDeviceUnpaired means the device exists but has no elder
	ErrDeviceUnpaired = errors.New("device not paired")
)

// PersistenceError wraps a failed store operation. It is retryable:
// the event writer is idempotent, so replaying the message is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// FanoutError is returned when an event was persisted but its delivery
// to live clients or caregivers partially failed. It is not retryable.
type FanoutError struct {
	EventID uuid.UUID
	Err     error
}

func (e *FanoutError) Error() string {
	return fmt.Sprintf("fan-out of event %s: %v", e.EventID, e.Err)
}

func (e *FanoutError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether replaying the message may succeed
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsUnresolvable reports whether the device identifier could not be used
func IsUnresolvable(err error) bool {
	return errors.Is(err, ErrUnknownDevice) || errors.Is(err, ErrDeviceUnpaired)
}

var (
	// ErrNotFound is returned by the caregiver-facing services for missing rows
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the user is not a caregiver of the elder concerned
	ErrForbidden = errors.New("not a caregiver of this elder")
)
