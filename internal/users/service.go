package users

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"covoiturage/internal/authz"
	"covoiturage/internal/events"
	"covoiturage/pkg/apperr"
	"covoiturage/pkg/db"
	"covoiturage/pkg/phone"
	"covoiturage/pkg/validation"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100

	minPasswordLength = 6
	maxNameLength     = 100
	maxEmailLength    = 100
	maxPhoneLength    = 20
	maxOTPLength      = 16

	// maxStoredPhoneLength is the width of users.phone_number.
	maxStoredPhoneLength = 255
	// bcrypt rejects longer input.
	maxPasswordBytes = 72
)

// Service contains user business logic.
type Service struct {
	store    Store
	events   events.Publisher
	loc      *time.Location
	now      func() time.Time
	hashCost int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where user events go.
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithLocation sets the calendar used by Stats.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option { return func(s *Service) { s.hashCost = cost } }

// NewService creates a user service backed by the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		events:   events.Discard{},
		loc:      time.UTC,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account from the public sign-up form.
func (s *Service) Register(ctx context.Context, req CreateRequest) (*User, error) {
	u, err := s.create(ctx, req, false)
	if err != nil {
		return nil, err
	}
	events.Async(s.events, events.TopicUserRegistered, u.ID, events.UserRegisteredEvent{
		UserID:       u.ID,
		Role:         string(u.Role),
		PhoneNumber:  u.PhoneNumber,
		RegisteredAt: u.CreatedAt.Format(time.RFC3339),
	})
	return u, nil
}

// Create adds an account on behalf of an authenticated caller. The phone
// number is held to a stricter format and checked for uniqueness up front.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	return s.create(ctx, req, true)
}

func (s *Service) create(ctx context.Context, req CreateRequest, strictPhone bool) (*User, error) {
	v := validation.New()

	if validation.Required(v, "name", req.Name, validation.KindString) {
		v.MaxLen("name", req.Name.Value, maxNameLength)
	}
	if validation.Required(v, "username", req.Username, validation.KindString) {
		v.MaxLen("username", req.Username.Value, maxNameLength)
	}

	var canonical string
	if validation.Required(v, "phone_number", req.PhoneNumber, validation.KindString) {
		canonical = phone.Normalize(req.PhoneNumber.Value)
		v.MaxLen("phone_number", canonical, maxStoredPhoneLength)
		if strictPhone && !v.Has("phone_number") {
			if err := s.checkPhone(ctx, v, req.PhoneNumber.Value, ""); err != nil {
				return nil, err
			}
		}
	}

	email, err := s.checkEmail(ctx, v, req.Email, "")
	if err != nil {
		return nil, err
	}

	if validation.Required(v, "password", req.Password, validation.KindString) {
		checkPassword(v, "password", req.Password.Value, req.PasswordConfirmation)
	}

	role := authz.DefaultRole
	if validation.Nullable(v, "role", req.Role, validation.KindString) {
		role = parseRole(v, req.Role.Value)
	}

	if err := v.Err(); err != nil {
		return nil, err
	}

	hash, err := s.hash(req.Password.Value)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:         strings.TrimSpace(req.Name.Value),
		Username:     strings.TrimSpace(req.Username.Value),
		Email:        email,
		PhoneNumber:  canonical,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// checkPhone applies the stricter phone rules: format, length and
// uniqueness of the canonical form, ignoring exceptID's own row.
func (s *Service) checkPhone(ctx context.Context, v *validation.Validator, raw, exceptID string) error {
	v.Pattern("phone_number", raw, validation.PhoneFormat)
	v.MaxLen("phone_number", raw, maxPhoneLength)
	if v.Has("phone_number") {
		return nil
	}
	taken, err := s.store.PhoneTaken(ctx, phone.Normalize(raw), exceptID)
	if err != nil {
		return err
	}
	v.Check(!taken, "phone_number", validation.Taken("phone_number"))
	return nil
}

func checkPassword(v *validation.Validator, field, password string, confirmation validation.Field[string]) {
	v.MinLen(field, password, minPasswordLength)
	v.MaxBytes(field, password, maxPasswordBytes)
	v.Confirmed(field, password, confirmation)
}

func parseRole(v *validation.Validator, s string) authz.Role {
	v.OneOf("role", s, authz.RoleNames()...)
	if v.Has("role") {
		return ""
	}
	return authz.Role(s)
}

// checkEmail validates an optional email and returns the value to store.
func (s *Service) checkEmail(ctx context.Context, v *validation.Validator, f validation.Field[string], exceptID string) (*string, error) {
	if !validation.Nullable(v, "email", f, validation.KindString) {
		return nil, nil
	}
	email := strings.TrimSpace(f.Value)
	v.Email("email", email)
	v.MaxLen("email", email, maxEmailLength)
	if v.Has("email") {
		return nil, nil
	}
	taken, err := s.store.EmailTaken(ctx, email, exceptID)
	if err != nil {
		return nil, err
	}
	v.Check(!taken, "email", validation.Taken("email"))
	return &email, nil
}

// Authenticate matches a phone number, in any input form, and a password.
// Failures never reveal which of the two was wrong.
func (s *Service) Authenticate(ctx context.Context, rawPhone, password string) (*User, error) {
	u, err := s.store.GetByPhone(ctx, phone.Normalize(rawPhone))
	if errors.Is(err, ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}
	return u, nil
}

var errBadCredentials = apperr.Unauthenticated("Invalid phone number or password")

// Get fetches a single user by primary key.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// List returns one page of users, newest first.
func (s *Service) List(ctx context.Context, p ListParams) (*Page, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PerPage < 1:
		p.PerPage = DefaultPerPage
	case p.PerPage > MaxPerPage:
		p.PerPage = MaxPerPage
	}
	// Pages past the end come back empty; this keeps Offset in range.
	if maxPage := math.MaxInt / p.PerPage; p.Page > maxPage {
		p.Page = maxPage
	}
	p.Search = strings.TrimSpace(p.Search)

	items, total, err := s.store.List(ctx, p)
	if err != nil {
		return nil, err
	}

	last := int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	if last < 1 {
		last = 1
	}
	return &Page{
		Items: items,
		Pagination: Pagination{
			CurrentPage: p.Page,
			LastPage:    last,
			PerPage:     p.PerPage,
			Total:       total,
		},
	}, nil
}

// Update applies a partial update. Only the account owner or an admin may
// update, and only an admin may change a role.
func (s *Service) Update(ctx context.Context, caller authz.Identity, id string, req UpdateRequest) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanUpdateUser(caller, u.ID); err != nil {
		return nil, err
	}

	v := validation.New()
	var ch db.Changes

	if validation.Sometimes(v, "name", req.Name, validation.KindString) {
		v.MaxLen("name", req.Name.Value, maxNameLength)
		ch.Set(ColName, strings.TrimSpace(req.Name.Value))
	}
	if validation.Sometimes(v, "username", req.Username, validation.KindString) {
		v.MaxLen("username", req.Username.Value, maxNameLength)
		ch.Set(ColUsername, strings.TrimSpace(req.Username.Value))
	}
	if validation.Sometimes(v, "phone_number", req.PhoneNumber, validation.KindString) {
		if err := s.checkPhone(ctx, v, req.PhoneNumber.Value, u.ID); err != nil {
			return nil, err
		}
		ch.Set(ColPhoneNumber, phone.Normalize(req.PhoneNumber.Value))
	}
	if req.Email.Set {
		email, err := s.checkEmail(ctx, v, req.Email, u.ID)
		if err != nil {
			return nil, err
		}
		ch.Set(ColEmail, email)
	}
	if validation.Sometimes(v, "password", req.Password, validation.KindString) {
		checkPassword(v, "password", req.Password.Value, req.PasswordConfirmation)
	}

	var role authz.Role
	if validation.Sometimes(v, "role", req.Role, validation.KindString) {
		role = parseRole(v, req.Role.Value)
	}

	s.coordinate(v, &ch, "longitude", ColLongitude, req.Longitude, 180)
	s.coordinate(v, &ch, "latitude", ColLatitude, req.Latitude, 90)

	if req.OTP.Set && validation.Nullable(v, "otp", req.OTP, validation.KindString) {
		v.MaxLen("otp", req.OTP.Value, maxOTPLength)
		ch.Set(ColOTP, req.OTP.Value)
	} else if req.OTP.Set && !v.Has("otp") {
		ch.Set(ColOTP, nil)
	}

	if validation.Sometimes(v, "isOnline", req.IsOnline, validation.KindBool) {
		ch.Set(ColIsOnline, req.IsOnline.Value)
	}
	if validation.Sometimes(v, "isMobileVerified", req.IsMobileVerified, validation.KindBool) {
		ch.Set(ColIsMobileVerified, req.IsMobileVerified.Value)
	}

	if err := v.Err(); err != nil {
		return nil, err
	}

	if role != "" && role != u.Role {
		if err := authz.CanChangeRole(caller); err != nil {
			return nil, err
		}
		ch.Set(ColRole, string(role))
	}

	if req.Password.Present() {
		hash, err := s.hash(req.Password.Value)
		if err != nil {
			return nil, err
		}
		ch.Set(ColPassword, hash)
	}

	updated, err := s.store.Update(ctx, u.ID, &ch)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	return updated, err
}

// coordinate validates an optional, nullable coordinate within ±limit.
func (s *Service) coordinate(v *validation.Validator, ch *db.Changes, field, col string, f validation.Field[float64], limit float64) {
	if !f.Set {
		return
	}
	if validation.Nullable(v, field, f, validation.KindNumber) {
		v.Between(field, f.Value, -limit, limit)
		ch.Set(col, f.Value)
		return
	}
	if !v.Has(field) {
		ch.Set(col, nil)
	}
}

// Delete removes an account. Only admins may delete, and never themselves.
func (s *Service) Delete(ctx context.Context, caller authz.Identity, id string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.CanDeleteUser(caller, u.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, u.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return err
	}
	return nil
}

// ChangePassword replaces the caller's password after checking the
// current one. A wrong current password is a validation error.
func (s *Service) ChangePassword(ctx context.Context, caller authz.Identity, req ChangePasswordRequest) error {
	v := validation.New()
	validation.Required(v, "current_password", req.CurrentPassword, validation.KindString)
	if validation.Required(v, "new_password", req.NewPassword, validation.KindString) {
		checkPassword(v, "new_password", req.NewPassword.Value, req.NewPasswordConfirmation)
	}
	if err := v.Err(); err != nil {
		return err
	}

	u, err := s.store.GetByID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return apperr.Unauthenticated("")
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword.Value)) != nil {
		return apperr.Invalid("current_password", "The current password is incorrect.")
	}

	hash, err := s.hash(req.NewPassword.Value)
	if err != nil {
		return err
	}
	var ch db.Changes
	ch.Set(ColPassword, hash)
	_, err = s.store.Update(ctx, u.ID, &ch)
	return err
}

// Stats counts accounts created today, this week and this month in the
// configured calendar. Admin only.
func (s *Service) Stats(ctx context.Context, caller authz.Identity) (*Stats, error) {
	if err := authz.RequireAdmin(caller); err != nil {
		return nil, err
	}

	day, week, month := periodStarts(s.now().In(s.loc))

	var st Stats
	var err error
	if st.TotalUsers, err = s.store.Count(ctx); err != nil {
		return nil, err
	}
	if st.UsersToday, err = s.store.CountCreatedBetween(ctx, day, day.AddDate(0, 0, 1)); err != nil {
		return nil, err
	}
	if st.UsersThisWeek, err = s.store.CountCreatedBetween(ctx, week, week.AddDate(0, 0, 7)); err != nil {
		return nil, err
	}
	if st.UsersThisMonth, err = s.store.CountCreatedBetween(ctx, month, month.AddDate(0, 1, 0)); err != nil {
		return nil, err
	}
	return &st, nil
}

// periodStarts returns the start of now's day, ISO week (Monday) and month,
// in now's location.
func periodStarts(now time.Time) (day, week, month time.Time) {
	y, m, d := now.Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	offset := (int(now.Weekday()) + 6) % 7
	week = day.AddDate(0, 0, -offset)
	month = time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return day, week, month
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
