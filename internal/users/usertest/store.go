// Package usertest provides an in-memory users.Store for tests.
package usertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"covoiturage/internal/authz"
	"covoiturage/internal/users"
	"covoiturage/pkg/apperr"
	"covoiturage/pkg/db"
	"covoiturage/pkg/validation"
)

// Store keeps users in a map. It enforces the same unique columns as the
// users table and reports violations the same way.
type Store struct {
	mu    sync.Mutex
	byID  map[string]users.User
	Now   func() time.Time
	calls int
}

func NewStore() *Store {
	return &Store{byID: map[string]users.User{}, Now: time.Now}
}

// Put inserts u as-is, assigning an id and timestamps when missing.
func (s *Store) Put(u users.User) users.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.Now()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	s.byID[u.ID] = u
	return u
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) Create(_ context.Context, u *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conflict(u.PhoneNumber, u.Email, ""); err != nil {
		return err
	}
	u.ID = uuid.New().String()
	// Distinct creation times keep newest-first ordering stable.
	s.calls++
	u.CreatedAt = s.Now().Add(time.Duration(s.calls) * time.Microsecond)
	u.UpdatedAt = u.CreatedAt
	s.byID[u.ID] = *u
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetByPhone(_ context.Context, phone string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.PhoneNumber == phone {
			return &u, nil
		}
	}
	return nil, users.ErrNotFound
}

func (s *Store) Update(_ context.Context, id string, ch *db.Changes) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	if ch.Len() == 0 {
		return &u, nil
	}

	ch.Each(func(col string, v any) {
		switch col {
		case users.ColName:
			u.Name = v.(string)
		case users.ColUsername:
			u.Username = v.(string)
		case users.ColEmail:
			u.Email, _ = v.(*string)
		case users.ColPhoneNumber:
			u.PhoneNumber = v.(string)
		case users.ColPassword:
			u.PasswordHash = v.(string)
		case users.ColRole:
			u.Role = authz.Role(v.(string))
		case users.ColIsOnline:
			u.IsOnline = v.(bool)
		case users.ColIsMobileVerified:
			u.IsMobileVerified = v.(bool)
		case users.ColOTP:
			u.OTP = stringPtr(v)
		case users.ColLongitude:
			u.Longitude = floatPtr(v)
		case users.ColLatitude:
			u.Latitude = floatPtr(v)
		}
	})
	if err := s.conflict(u.PhoneNumber, u.Email, u.ID); err != nil {
		return nil, err
	}
	u.UpdatedAt = s.Now()
	s.byID[id] = u
	return &u, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return users.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Store) List(_ context.Context, p users.ListParams) ([]users.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(p.Search)
	var all []users.User
	for _, u := range s.byID {
		if needle == "" || matches(u, needle) {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))
	start := p.Offset()
	if start < 0 || start > len(all) {
		start = len(all)
	}
	end := len(all)
	if p.PerPage < end-start {
		end = start + p.PerPage
	}
	items := append([]users.User{}, all[start:end]...)
	return items, total, nil
}

func matches(u users.User, needle string) bool {
	fields := []string{u.Name, u.PhoneNumber, u.CreatedAt.Format("2006-01-02 15:04:05")}
	if u.Email != nil {
		fields = append(fields, *u.Email)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func (s *Store) EmailTaken(_ context.Context, email, exceptID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ID != exceptID && u.Email != nil && *u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) PhoneTaken(_ context.Context, phone, exceptID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ID != exceptID && u.PhoneNumber == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *Store) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.byID)), nil
}

func (s *Store) CountCreatedBetween(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.byID {
		if !u.CreatedAt.Before(from) && u.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// conflict must be called with s.mu held.
func (s *Store) conflict(phone string, email *string, exceptID string) error {
	for _, other := range s.byID {
		if other.ID == exceptID {
			continue
		}
		if other.PhoneNumber == phone {
			return apperr.Conflict(users.ColPhoneNumber, validation.Taken(users.ColPhoneNumber), nil)
		}
		if email != nil && other.Email != nil && *other.Email == *email {
			return apperr.Conflict(users.ColEmail, validation.Taken(users.ColEmail), nil)
		}
	}
	return nil
}

func stringPtr(v any) *string {
	switch x := v.(type) {
	case string:
		return &x
	case *string:
		return x
	}
	return nil
}

func floatPtr(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case *float64:
		return x
	}
	return nil
}
