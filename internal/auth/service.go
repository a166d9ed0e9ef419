// Package auth issues and revokes bearer tokens for phone number logins.
package auth

import (
	"context"
	"fmt"
	"log"

	"covoiturage/internal/authz"
	"covoiturage/internal/users"
	"covoiturage/pkg/jwt"
	"covoiturage/pkg/validation"
)

const minPasswordLength = 6

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	PhoneNumber validation.Field[string] `json:"phone_number"`
	Password    validation.Field[string] `json:"password"`
}

// Session is a signed token and the user it was issued to.
type Session struct {
	Token jwt.Token
	User  *users.User
}

// Service wraps the user service with token handling.
type Service struct {
	users  *users.Service
	tokens *jwt.Manager
}

// NewService creates an auth service.
func NewService(u *users.Service, tokens *jwt.Manager) *Service {
	return &Service{users: u, tokens: tokens}
}

// Register creates an account and signs its first token.
func (s *Service) Register(ctx context.Context, req users.CreateRequest) (*Session, error) {
	u, err := s.users.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Login checks credentials and signs a token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	v := validation.New()
	validation.Required(v, "phone_number", req.PhoneNumber, validation.KindString)
	if validation.Required(v, "password", req.Password, validation.KindString) {
		v.MinLen("password", req.Password.Value, minPasswordLength)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	u, err := s.users.Authenticate(ctx, req.PhoneNumber.Value, req.Password.Value)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Logout revokes the caller's current token.
func (s *Service) Logout(ctx context.Context, caller authz.Identity) error {
	if err := s.tokens.Revoke(ctx, caller.Token); err != nil {
		return tokenErr(err)
	}
	log.Printf("[auth] user %s logged out", caller.UserID)
	return nil
}

// Refresh swaps the caller's token for a new one with a fresh expiry.
func (s *Service) Refresh(ctx context.Context, caller authz.Identity) (*Session, error) {
	tok, err := s.tokens.Refresh(ctx, caller.Token)
	if err != nil {
		return nil, tokenErr(err)
	}
	u, err := s.users.Get(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, User: u}, nil
}

// Profile returns the caller's record.
func (s *Service) Profile(ctx context.Context, caller authz.Identity) (*users.User, error) {
	return s.users.Get(ctx, caller.UserID)
}

// TTL is the access token lifetime.
func (s *Service) TTL() int { return int(s.tokens.TTL().Seconds()) }

func (s *Service) issue(u *users.User) (*Session, error) {
	tok, err := s.tokens.Generate(u.ID, string(u.Role))
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: tok, User: u}, nil
}
