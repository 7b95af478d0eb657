// Package events delivers committed dispatch events to downstream consumers.
package events

import (
	"context"

	"tms/internal/domain"
	"tms/internal/logger"
	"tms/internal/service"
)

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	log logger.Logger
}

var _ service.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the event at info level.
func (p *LogPublisher) Publish(_ context.Context, ev domain.DispatchEvent) error {
	p.log.Infow(string(ev.Type), fields(ev))
	return nil
}

func fields(ev domain.DispatchEvent) map[string]any {
	f := map[string]any{
		"event_id":    ev.ID,
		"dispatch_id": ev.DispatchID,
		"booking_id":  ev.BookingID,
		"status":      string(ev.Status),
		"operator_id": ev.OperatorID,
	}
	if ev.DriverID != "" {
		f["driver_id"] = ev.DriverID
	}
	if ev.PreviousStatus != "" {
		f["previous_status"] = string(ev.PreviousStatus)
	}
	return f
}
