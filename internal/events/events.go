package events

import (
	"context"
	"log"
	"time"
)

// Well-known topic names.
const (
	TopicUserRegistered = "user.registered"
	TopicTripCreated    = "trip.created"
	TopicTripUpdated    = "trip.updated"
	TopicTripDeleted    = "trip.deleted"
)

// TripTopics are the topics carrying TripEvent payloads.
var TripTopics = []string{TopicTripCreated, TopicTripUpdated, TopicTripDeleted}

// Publisher sends a JSON-serialisable value to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Discard drops every event. It is used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, string, any) error { return nil }

// Async publishes in the background; failures are logged, never returned.
func Async(p Publisher, topic, key string, value any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Publish(ctx, topic, key, value); err != nil {
			log.Printf("[events] failed to publish %s for %s: %v", topic, key, err)
		}
	}()
}

// UserRegisteredEvent is published to user.registered.
type UserRegisteredEvent struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	PhoneNumber  string `json:"phone_number"`
	RegisteredAt string `json:"registered_at"`
}

// TripEvent is published to the trip.* topics.
type TripEvent struct {
	Type        string  `json:"type"`
	TripID      string  `json:"trip_id"`
	PassengerID string  `json:"passenger_id"`
	DriverID    *string `json:"driver_id,omitempty"`
	Status      string  `json:"status"`
	Price       float64 `json:"price"`
	OccurredAt  string  `json:"occurred_at"`
}
