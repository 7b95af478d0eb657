package service

import (
	"context"
	"time"

	"tms/internal/domain"
)

// EventPublisher delivers committed dispatch events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.DispatchEvent) error
}

// MetricsRecorder receives operational measurements from the services.
type MetricsRecorder interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	IncTransition(from, to domain.DispatchStatus)
	SetAvailableDrivers(n int)
}

// Operation outcomes reported to MetricsRecorder.
const (
	OutcomeOK            = "ok"
	OutcomeBusinessError = "business_error"
	OutcomeError         = "error"
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case IsBusinessError(err):
		return OutcomeBusinessError
	default:
		return OutcomeError
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.DispatchEvent) error { return nil }

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, time.Duration)              {}
func (nopMetrics) IncTransition(domain.DispatchStatus, domain.DispatchStatus) {}
func (nopMetrics) SetAvailableDrivers(int)                                    {}
