package trips

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"covoiturage/internal/events"
	"covoiturage/pkg/apperr"
	"covoiturage/pkg/db"
	"covoiturage/pkg/validation"
)

const (
	maxAddressLength = 255
	maxReasonLength  = 255

	// NUMERIC(10,2)
	maxPrice = 99999999.99
)

// UserDirectory answers whether a user id exists. users.Store satisfies it.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service contains trip business logic.
type Service struct {
	store   Store
	users   UserDirectory
	events  events.Publisher
	enforce bool
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where trip events go.
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithTransitions turns on lifecycle enforcement for status updates.
func WithTransitions(enforce bool) Option { return func(s *Service) { s.enforce = enforce } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a trip service.
func NewService(store Store, users UserDirectory, opts ...Option) *Service {
	s := &Service{store: store, users: users, events: events.Discard{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create books a new PENDING trip.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Trip, error) {
	v := validation.New()

	if validation.Required(v, "pickup_address", req.PickupAddress, validation.KindString) {
		v.MaxLen("pickup_address", req.PickupAddress.Value, maxAddressLength)
	}
	if validation.Required(v, "destination_address", req.DestinationAddress, validation.KindString) {
		v.MaxLen("destination_address", req.DestinationAddress.Value, maxAddressLength)
	}
	if validation.Required(v, "price", req.Price, validation.KindNumber) {
		v.Between("price", float64(req.Price.Value), 0, maxPrice)
	}
	if validation.Required(v, "passenger_id", req.PassengerID, validation.KindString) {
		if err := s.userExists(ctx, v, "passenger_id", req.PassengerID.Value); err != nil {
			return nil, err
		}
	}
	var driverID *string
	if validation.Nullable(v, "driver_id", req.DriverID, validation.KindString) {
		if err := s.userExists(ctx, v, "driver_id", req.DriverID.Value); err != nil {
			return nil, err
		}
		driverID = req.DriverID.Ptr()
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	t := &Trip{
		PickupAddress:      strings.TrimSpace(req.PickupAddress.Value),
		DestinationAddress: strings.TrimSpace(req.DestinationAddress.Value),
		Price:              float64(req.Price.Value),
		Status:             StatusPending,
		PassengerID:        req.PassengerID.Value,
		DriverID:           driverID,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.publish(events.TopicTripCreated, "created", t)
	return t, nil
}

// List returns every trip, newest first.
func (s *Service) List(ctx context.Context) ([]Trip, error) {
	return s.store.List(ctx)
}

// Get fetches a single trip.
func (s *Service) Get(ctx context.Context, id string) (*Trip, error) {
	t, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Trip not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Update applies a partial update. Entering ONGOING, COMPLETED or CANCELLED
// stamps the matching timestamp once.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Trip, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	v := validation.New()
	var ch db.Changes

	if validation.Sometimes(v, "pickup_address", req.PickupAddress, validation.KindString) {
		v.MaxLen("pickup_address", req.PickupAddress.Value, maxAddressLength)
		ch.Set(ColPickupAddress, strings.TrimSpace(req.PickupAddress.Value))
	}
	if validation.Sometimes(v, "destination_address", req.DestinationAddress, validation.KindString) {
		v.MaxLen("destination_address", req.DestinationAddress.Value, maxAddressLength)
		ch.Set(ColDestinationAddress, strings.TrimSpace(req.DestinationAddress.Value))
	}
	if validation.Sometimes(v, "price", req.Price, validation.KindNumber) {
		price := float64(req.Price.Value)
		v.Between("price", price, 0, maxPrice)
		ch.Set(ColPrice, price)
	}

	if req.DriverID.Set {
		if validation.Nullable(v, "driver_id", req.DriverID, validation.KindString) {
			if err := s.userExists(ctx, v, "driver_id", req.DriverID.Value); err != nil {
				return nil, err
			}
			ch.Set(ColDriverID, req.DriverID.Value)
		} else if !v.Has("driver_id") {
			ch.Set(ColDriverID, nil)
		}
	}

	if req.CancellationReason.Set {
		if validation.Nullable(v, "cancellation_reason", req.CancellationReason, validation.KindString) {
			v.MaxLen("cancellation_reason", req.CancellationReason.Value, maxReasonLength)
			ch.Set(ColCancellationReason, req.CancellationReason.Value)
		} else if !v.Has("cancellation_reason") {
			ch.Set(ColCancellationReason, nil)
		}
	}

	if validation.Sometimes(v, "status", req.Status, validation.KindString) {
		v.OneOf("status", req.Status.Value, StatusNames()...)
		next := Status(req.Status.Value)
		switch {
		case v.Has("status"):
		case s.enforce && !t.Status.CanBecome(next):
			v.Add("status", fmt.Sprintf("The status cannot change from %s to %s.", t.Status, next))
		default:
			ch.Set(ColStatus, string(next))
			s.stamp(&ch, t, next)
		}
	}

	if err := v.Err(); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, t.ID, &ch)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Trip not found")
	}
	if err != nil {
		return nil, err
	}
	s.publish(events.TopicTripUpdated, "updated", updated)
	return updated, nil
}

// stamp records when the trip first entered next.
func (s *Service) stamp(ch *db.Changes, t *Trip, next Status) {
	now := s.now()
	switch next {
	case StatusOngoing:
		if t.StartedAt == nil {
			ch.Set(ColStartedAt, now)
		}
	case StatusCompleted:
		if t.CompletedAt == nil {
			ch.Set(ColCompletedAt, now)
		}
	case StatusCancelled:
		if t.CancelledAt == nil {
			ch.Set(ColCancelledAt, now)
		}
	case StatusPending:
	}
}

// Delete removes a trip.
func (s *Service) Delete(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, t.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("Trip not found")
		}
		return err
	}
	s.publish(events.TopicTripDeleted, "deleted", t)
	return nil
}

// Snapshot returns the current state of a trip as a feed event.
func (s *Service) Snapshot(ctx context.Context, id string) (events.TripEvent, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return events.TripEvent{}, err
	}
	return s.event("snapshot", t), nil
}

func (s *Service) userExists(ctx context.Context, v *validation.Validator, field, id string) error {
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check %s: %w", field, err)
	}
	v.Check(ok, field, validation.Selected(field))
	return nil
}

func (s *Service) publish(topic, typ string, t *Trip) {
	events.Async(s.events, topic, t.ID, s.event(typ, t))
}

func (s *Service) event(typ string, t *Trip) events.TripEvent {
	return events.TripEvent{
		Type:        typ,
		TripID:      t.ID,
		PassengerID: t.PassengerID,
		DriverID:    t.DriverID,
		Status:      string(t.Status),
		Price:       t.Price,
		OccurredAt:  s.now().UTC().Format(time.RFC3339),
	}
}
