package domain

import (
	"fmt"
	"strings"
	"time"
)

// DriverStatus represents the current status of a driver.
type DriverStatus string

const (
	DriverStatusActive   DriverStatus = "active"
	DriverStatusInactive DriverStatus = "inactive"
	DriverStatusBusy     DriverStatus = "busy"
)

// TimeOfDay is an offset from midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return TimeOfDay(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
}

// TimeOfDayOf returns the wall-clock offset of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

// String formats the offset as HH:MM:SS.
func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

// Shift is a daily working window. An End before Start wraps past midnight.
type Shift struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether t falls in [Start, End).
// Equal bounds describe a round-the-clock shift.
func (s Shift) Contains(t time.Time) bool {
	tod := TimeOfDayOf(t)
	switch {
	case s.Start == s.End:
		return true
	case s.Start < s.End:
		return tod >= s.Start && tod < s.End
	default:
		return tod >= s.Start || tod < s.End
	}
}

// Driver represents a driver in the system.
type Driver struct {
	ID              string
	Name            string
	Phone           string
	LicenseNumber   string
	LicenseExpiry   time.Time
	Shift           *Shift
	Status          DriverStatus
	IsAvailable     bool
	TotalTrips      int
	Rating          float64
	AssignedTruckID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LicenseValid reports whether the license is unexpired at now.
func (d *Driver) LicenseValid(now time.Time) bool {
	return d.LicenseExpiry.After(now)
}

// OnShift reports whether now falls inside the driver's shift.
// Drivers without a configured shift are always on shift.
func (d *Driver) OnShift(now time.Time) bool {
	if d.Shift == nil {
		return true
	}
	return d.Shift.Contains(now)
}

// Eligible applies the per-driver half of the assignability rule. Whether
// the driver is already committed to another dispatch is checked against
// the dispatch store by the caller.
func (d *Driver) Eligible(now time.Time) bool {
	return d.Status == DriverStatusActive &&
		d.IsAvailable &&
		d.LicenseValid(now) &&
		d.OnShift(now)
}

// IneligibleReason names the first failed check, or "" when Eligible.
func (d *Driver) IneligibleReason(now time.Time) string {
	switch {
	case d.Status != DriverStatusActive:
		return fmt.Sprintf("driver status is %s", d.Status)
	case !d.IsAvailable:
		return "driver is marked unavailable"
	case !d.LicenseValid(now):
		return "driver license expired"
	case !d.OnShift(now):
		return "driver is off shift"
	}
	return ""
}
