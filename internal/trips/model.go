package trips

import (
	"time"

	"covoiturage/pkg/validation"
)

// Status enumerates the lifecycle states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// StatusNames lists every valid status, the allowed set of the status field.
func StatusNames() []string {
	return []string{string(StatusPending), string(StatusOngoing), string(StatusCompleted), string(StatusCancelled)}
}

// CanBecome reports whether the lifecycle graph allows moving from s to
// next: PENDING to ONGOING or CANCELLED, ONGOING to COMPLETED or CANCELLED.
// Staying in the same state is always allowed.
func (s Status) CanBecome(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusOngoing || next == StatusCancelled
	case StatusOngoing:
		return next == StatusCompleted || next == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

// Trip represents a ride booked by a passenger.
type Trip struct {
	ID                 string     `json:"id"`
	PickupAddress      string     `json:"pickup_address"`
	DestinationAddress string     `json:"destination_address"`
	Price              float64    `json:"price"`
	Status             Status     `json:"status"`
	PassengerID        string     `json:"passenger_id"`
	DriverID           *string    `json:"driver_id"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	CancellationReason *string    `json:"cancellation_reason"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CreateRequest is the body for POST /trips.
type CreateRequest struct {
	PickupAddress      validation.Field[string]            `json:"pickup_address"`
	DestinationAddress validation.Field[string]            `json:"destination_address"`
	Price              validation.Field[validation.Number] `json:"price"`
	PassengerID        validation.Field[string]            `json:"passenger_id"`
	DriverID           validation.Field[string]            `json:"driver_id"`
}

// UpdateRequest is the body for PUT/PATCH /trips/{id}.
type UpdateRequest struct {
	PickupAddress      validation.Field[string]            `json:"pickup_address"`
	DestinationAddress validation.Field[string]            `json:"destination_address"`
	Price              validation.Field[validation.Number] `json:"price"`
	DriverID           validation.Field[string]            `json:"driver_id"`
	Status             validation.Field[string]            `json:"status"`
	CancellationReason validation.Field[string]            `json:"cancellation_reason"`
}
