package model

import (
	"fmt"
	"strings"
	"time"
)

// Vehicle types.
const (
	VehicleBicycle   = "bicycle"
	VehicleMotorbike = "motorbike"
	VehicleCar       = "car"
	VehicleFoot      = "foot"
)

// Registration statuses.
const (
	RegistrationPending   = "pending"
	RegistrationVerified  = "verified"
	RegistrationSuspended = "suspended"
)

// Rider is a courier registered with the platform. Riders are never hard-deleted.
type Rider struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone"`
	VehicleType        string     `json:"vehicle_type"`
	RegistrationStatus string     `json:"registration_status"`
	Online             bool       `json:"online"`
	LastLat            float64    `json:"last_lat,omitempty"`
	LastLon            float64    `json:"last_lon,omitempty"`
	LastSeenAt         *time.Time `json:"last_seen_at,omitempty"`
	CommissionRate     float64    `json:"commission_rate"`
	TripCount          int        `json:"trip_count"`
	Rating             float64    `json:"rating"`
	PushToken          string     `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Verified reports whether the rider passed registration review.
func (r Rider) Verified() bool {
	return r.RegistrationStatus == RegistrationVerified
}

// Dispatchable reports whether the rider may see and claim open requests.
func (r Rider) Dispatchable() bool {
	return r.Verified() && r.Online
}

// ValidVehicleType reports whether v is a known vehicle type.
func ValidVehicleType(v string) bool {
	switch v {
	case VehicleBicycle, VehicleMotorbike, VehicleCar, VehicleFoot:
		return true
	}
	return false
}

// ValidRegistrationStatus reports whether s is a known registration status.
func ValidRegistrationStatus(s string) bool {
	switch s {
	case RegistrationPending, RegistrationVerified, RegistrationSuspended:
		return true
	}
	return false
}

// Validate checks the profile fields required to register a rider.
func (r Rider) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(r.Phone) == "" {
		return fmt.Errorf("%w: phone is required", ErrValidation)
	}
	if !ValidVehicleType(r.VehicleType) {
		return fmt.Errorf("%w: unknown vehicle type %q", ErrValidation, r.VehicleType)
	}
	if r.RegistrationStatus != "" && !ValidRegistrationStatus(r.RegistrationStatus) {
		return fmt.Errorf("%w: unknown registration status %q", ErrValidation, r.RegistrationStatus)
	}
	if r.CommissionRate < 0 || r.CommissionRate > 100 {
		return fmt.Errorf("%w: commission rate must be within 0..100", ErrValidation)
	}
	return nil
}
