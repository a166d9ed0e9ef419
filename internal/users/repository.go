package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"covoiturage/internal/authz"
	"covoiturage/pkg/apperr"
	"covoiturage/pkg/db"
	"covoiturage/pkg/validation"
)

// ErrNotFound is returned by a Store when no user matches.
var ErrNotFound = errors.New("user not found")

// Column names accepted by Store.Update.
const (
	ColName             = "name"
	ColUsername         = "username"
	ColEmail            = "email"
	ColPhoneNumber      = "phone_number"
	ColPassword         = "password"
	ColRole             = "role"
	ColIsOnline         = "is_online"
	ColIsMobileVerified = "is_mobile_verified"
	ColOTP              = "otp"
	ColLongitude        = "longitude"
	ColLatitude         = "latitude"
)

// Unique constraints, see migrations/001_create_users.sql.
const (
	phoneConstraint = "users_phone_number_key"
	emailConstraint = "users_email_key"
)

// Store persists users. Implementations report uniqueness violations as
// apperr conflicts on the offending field.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	Update(ctx context.Context, id string, ch *db.Changes) (*User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, p ListParams) ([]User, int64, error)
	EmailTaken(ctx context.Context, email, exceptID string) (bool, error)
	PhoneTaken(ctx context.Context, phone, exceptID string) (bool, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

const userColumns = `id, name, username, email, phone_number, password, role,
	is_online, is_mobile_verified, otp, longitude, latitude,
	email_verified_at, created_at, updated_at`

type postgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{db: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PhoneNumber, &u.PasswordHash, &role,
		&u.IsOnline, &u.IsMobileVerified, &u.OTP, &u.Longitude, &u.Latitude,
		&u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = authz.Role(role)
	return &u, nil
}

func (s *postgresStore) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New().String()
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (id,name,username,email,phone_number,password,role,is_online,is_mobile_verified)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Username, u.Email, u.PhoneNumber, u.PasswordHash, string(u.Role),
		u.IsOnline, u.IsMobileVerified).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapWriteErr("create user", err)
	}
	return nil
}

func (s *postgresStore) GetByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *postgresStore) GetByPhone(ctx context.Context, phone string) (*User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number=$1`, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by phone: %w", err)
	}
	return u, nil
}

func (s *postgresStore) Update(ctx context.Context, id string, ch *db.Changes) (*User, error) {
	if ch.Len() == 0 {
		return s.GetByID(ctx, id)
	}
	set, args := ch.SetClause(2)
	u, err := scanUser(s.db.QueryRow(ctx,
		`UPDATE users SET `+set+`, updated_at=NOW() WHERE id=$1 RETURNING `+userColumns,
		append([]any{id}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapWriteErr("update user", err)
	}
	return u, nil
}

func (s *postgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) List(ctx context.Context, p ListParams) ([]User, int64, error) {
	where, args := listFilter(p.Search)

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	n := len(args)
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			userColumns, where, n+1, n+2),
		append(args, p.PerPage, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0, p.PerPage)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return items, total, nil
}

// listFilter builds the search clause: a case-insensitive substring match
// on name, email, phone number or creation time.
func listFilter(search string) (string, []any) {
	if search == "" {
		return "", nil
	}
	return ` WHERE (name ILIKE $1 OR email ILIKE $1 OR phone_number ILIKE $1 OR created_at::text ILIKE $1)`,
		[]any{"%" + escapeLike(search) + "%"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func (s *postgresStore) EmailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1 AND id::text<>$2)`, email, exceptID)
}

func (s *postgresStore) PhoneTaken(ctx context.Context, phone, exceptID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number=$1 AND id::text<>$2)`, phone, exceptID)
}

func (s *postgresStore) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, id)
}

func (s *postgresStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.db.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("users exists query: %w", err)
	}
	return ok, nil
}

func (s *postgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *postgresStore) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users by period: %w", err)
	}
	return n, nil
}

func mapWriteErr(op string, err error) error {
	if name, ok := db.ConstraintViolation(err, db.CodeUniqueViolation); ok {
		switch name {
		case phoneConstraint:
			return apperr.Conflict(ColPhoneNumber, validation.Taken(ColPhoneNumber), err)
		case emailConstraint:
			return apperr.Conflict(ColEmail, validation.Taken(ColEmail), err)
		}
	}
	if db.HasCode(err, db.CodeStringTooLong) {
		return apperr.Rejected("A value is too long for its field.")
	}
	return fmt.Errorf("%s: %w", op, err)
}
