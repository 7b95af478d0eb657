package domain

import "time"

// Booking is a customer order awaiting or undergoing fulfillment.
// Its Status is billing-side and independent of any dispatch status.
type Booking struct {
	ID          string
	Source      string
	Destination string
	TruckID     string
	VehicleID   string
	ServiceType string
	Price       float64
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
