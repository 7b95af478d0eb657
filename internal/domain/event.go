package domain

import "time"

// Operator identifies the authenticated caller performing an operation.
type Operator struct {
	ID   string
	Role string
}

// SystemOperator is used when a request carries no authenticated identity.
var SystemOperator = Operator{ID: "system", Role: "system"}

// DispatchEventType names a dispatch lifecycle event.
type DispatchEventType string

const (
	DispatchEventCreated          DispatchEventType = "dispatch.created"
	DispatchEventDriverAssigned   DispatchEventType = "dispatch.driver_assigned"
	DispatchEventDriverUnassigned DispatchEventType = "dispatch.driver_unassigned"
	DispatchEventStatusChanged    DispatchEventType = "dispatch.status_changed"
	DispatchEventCancelled        DispatchEventType = "dispatch.cancelled"
	DispatchEventDeleted          DispatchEventType = "dispatch.deleted"
)

// DispatchEvent is emitted after a dispatch change has been committed.
type DispatchEvent struct {
	ID             string            `json:"id"`
	Type           DispatchEventType `json:"type"`
	DispatchID     string            `json:"dispatch_id"`
	BookingID      string            `json:"booking_id"`
	DriverID       string            `json:"driver_id,omitempty"`
	PreviousStatus DispatchStatus    `json:"previous_status,omitempty"`
	Status         DispatchStatus    `json:"status"`
	OperatorID     string            `json:"operator_id"`
	OccurredAt     time.Time         `json:"occurred_at"`
}
