package domain

import (
	"fmt"
	"time"
)

// DispatchStatus represents the fulfillment state of a dispatch.
type DispatchStatus string

const (
	DispatchStatusPending    DispatchStatus = "pending"
	DispatchStatusDispatched DispatchStatus = "dispatched"
	DispatchStatusInTransit  DispatchStatus = "in_transit"
	DispatchStatusArrived    DispatchStatus = "arrived"
	DispatchStatusCompleted  DispatchStatus = "completed"
	DispatchStatusCancelled  DispatchStatus = "cancelled"
)

// DispatchStatuses lists every status in lifecycle order.
var DispatchStatuses = []DispatchStatus{
	DispatchStatusPending,
	DispatchStatusDispatched,
	DispatchStatusInTransit,
	DispatchStatusArrived,
	DispatchStatusCompleted,
	DispatchStatusCancelled,
}

// ParseDispatchStatus converts raw input into a DispatchStatus.
func ParseDispatchStatus(raw string) (DispatchStatus, error) {
	s := DispatchStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Valid reports whether s is one of the six lifecycle statuses.
func (s DispatchStatus) Valid() bool {
	switch s {
	case DispatchStatusPending,
		DispatchStatusDispatched,
		DispatchStatusInTransit,
		DispatchStatusArrived,
		DispatchStatusCompleted,
		DispatchStatusCancelled:
		return true
	}
	return false
}

// Next returns the statuses reachable from s in a single transition.
func (s DispatchStatus) Next() []DispatchStatus {
	switch s {
	case DispatchStatusPending:
		return []DispatchStatus{DispatchStatusDispatched, DispatchStatusCancelled}
	case DispatchStatusDispatched:
		return []DispatchStatus{DispatchStatusInTransit, DispatchStatusCancelled}
	case DispatchStatusInTransit:
		return []DispatchStatus{DispatchStatusArrived, DispatchStatusCancelled}
	case DispatchStatusArrived:
		return []DispatchStatus{DispatchStatusCompleted, DispatchStatusCancelled}
	case DispatchStatusCompleted, DispatchStatusCancelled:
		return nil
	}
	return nil
}

// CanTransitionTo reports whether target is in the allowed-next set of s.
func (s DispatchStatus) CanTransitionTo(target DispatchStatus) bool {
	for _, next := range s.Next() {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s DispatchStatus) IsTerminal() bool {
	switch s {
	case DispatchStatusCompleted, DispatchStatusCancelled:
		return true
	case DispatchStatusPending, DispatchStatusDispatched, DispatchStatusInTransit, DispatchStatusArrived:
		return false
	}
	return false
}

// IsActive reports whether a dispatch in s is consuming its driver's capacity.
func (s DispatchStatus) IsActive() bool {
	switch s {
	case DispatchStatusDispatched, DispatchStatusInTransit, DispatchStatusArrived:
		return true
	case DispatchStatusPending, DispatchStatusCompleted, DispatchStatusCancelled:
		return false
	}
	return false
}

// AllowsAssignment reports whether a driver may be (re)assigned in s.
func (s DispatchStatus) AllowsAssignment() bool {
	switch s {
	case DispatchStatusPending, DispatchStatusDispatched:
		return true
	case DispatchStatusInTransit, DispatchStatusArrived, DispatchStatusCompleted, DispatchStatusCancelled:
		return false
	}
	return false
}

// Dispatch tracks the physical fulfillment of one booking.
// Zero-valued AssignedDriverID, DispatchTime and ArrivalTime mean unset.
type Dispatch struct {
	ID               string
	BookingID        string
	AssignedDriverID string
	Status           DispatchStatus
	DispatchTime     time.Time
	ArrivalTime      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasDriver reports whether a driver is assigned.
func (d *Dispatch) HasDriver() bool {
	return d.AssignedDriverID != ""
}

// TransitionContext carries the clock reading for a transition and an
// optional caller-supplied event time. At falls back to Now when zero.
type TransitionContext struct {
	Now time.Time
	At  time.Time
}

func (tc TransitionContext) eventTime() time.Time {
	if tc.At.IsZero() {
		return tc.Now
	}
	return tc.At
}

// Transition moves d into target and applies the timestamp side effects
// of entering that status. On error d is left exactly as it was.
func (d *Dispatch) Transition(target DispatchStatus, tc TransitionContext) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if !d.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, target)
	}

	next := *d
	switch target {
	case DispatchStatusDispatched:
		if !next.HasDriver() {
			return ErrMissingDriver
		}
		if next.DispatchTime.IsZero() {
			next.DispatchTime = tc.eventTime()
		}
	case DispatchStatusArrived:
		if next.ArrivalTime.IsZero() {
			next.ArrivalTime = tc.eventTime()
		}
	case DispatchStatusPending, DispatchStatusInTransit, DispatchStatusCompleted, DispatchStatusCancelled:
	}

	next.Status = target
	next.UpdatedAt = tc.Now
	*d = next
	return nil
}
