package trips

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"covoiturage/pkg/apperr"
	"covoiturage/pkg/db"
	"covoiturage/pkg/validation"
)

// ErrNotFound is returned by a Store when no trip matches.
var ErrNotFound = errors.New("trip not found")

// Column names accepted by Store.Update.
const (
	ColPickupAddress      = "pickup_address"
	ColDestinationAddress = "destination_address"
	ColPrice              = "price"
	ColStatus             = "status"
	ColDriverID           = "driver_id"
	ColStartedAt          = "started_at"
	ColCompletedAt        = "completed_at"
	ColCancelledAt        = "cancelled_at"
	ColCancellationReason = "cancellation_reason"
)

// Foreign keys, see migrations/002_create_trips.sql.
const (
	passengerFK = "trips_passenger_id_fkey"
	driverFK    = "trips_driver_id_fkey"
)

// Store persists trips. A reference to a missing user is reported as a
// validation error on the referencing field.
type Store interface {
	Create(ctx context.Context, t *Trip) error
	GetByID(ctx context.Context, id string) (*Trip, error)
	List(ctx context.Context) ([]Trip, error)
	Update(ctx context.Context, id string, ch *db.Changes) (*Trip, error)
	Delete(ctx context.Context, id string) error
}

const tripColumns = `id, pickup_address, destination_address, price, status,
	passenger_id, driver_id, started_at, completed_at, cancelled_at,
	cancellation_reason, created_at, updated_at`

type postgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{db: pool}
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var status string
	err := row.Scan(&t.ID, &t.PickupAddress, &t.DestinationAddress, &t.Price, &status,
		&t.PassengerID, &t.DriverID, &t.StartedAt, &t.CompletedAt, &t.CancelledAt,
		&t.CancellationReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}

func (s *postgresStore) Create(ctx context.Context, t *Trip) error {
	t.ID = uuid.New().String()
	err := s.db.QueryRow(ctx,
		`INSERT INTO trips (id,pickup_address,destination_address,price,status,passenger_id,driver_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING created_at, updated_at`,
		t.ID, t.PickupAddress, t.DestinationAddress, t.Price, string(t.Status), t.PassengerID, t.DriverID).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return mapWriteErr("create trip", err)
	}
	return nil
}

func (s *postgresStore) GetByID(ctx context.Context, id string) (*Trip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	t, err := scanTrip(s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

func (s *postgresStore) List(ctx context.Context) ([]Trip, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tripColumns+` FROM trips ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	list := []Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return list, nil
}

func (s *postgresStore) Update(ctx context.Context, id string, ch *db.Changes) (*Trip, error) {
	if ch.Len() == 0 {
		return s.GetByID(ctx, id)
	}
	set, args := ch.SetClause(2)
	t, err := scanTrip(s.db.QueryRow(ctx,
		`UPDATE trips SET `+set+`, updated_at=NOW() WHERE id=$1 RETURNING `+tripColumns,
		append([]any{id}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapWriteErr("update trip", err)
	}
	return t, nil
}

func (s *postgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM trips WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// mapWriteErr turns a foreign key violation into the validation error a
// missing user would have produced up front. The existence check and the
// write are not atomic, so a user deleted in between lands here.
func mapWriteErr(op string, err error) error {
	if name, ok := db.ConstraintViolation(err, db.CodeForeignKeyViolation); ok {
		switch name {
		case passengerFK:
			return apperr.Invalid("passenger_id", validation.Selected("passenger_id"))
		case driverFK:
			return apperr.Invalid("driver_id", validation.Selected("driver_id"))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
