package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingSecret  = errors.New("JWT_SECRET is required")
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrRevokedToken   = errors.New("token revoked")
	ErrRefreshExpired = errors.New("token refresh window has closed")
)

// Claims represents the JWT payload.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	// OrigIssuedAt is the issue time of the first token in a refresh chain.
	OrigIssuedAt *gojwt.NumericDate `json:"orig_iat,omitempty"`
	gojwt.RegisteredClaims
}

// refreshStart is the instant the refresh window is measured from.
func (c *Claims) refreshStart() time.Time {
	if c.OrigIssuedAt != nil {
		return c.OrigIssuedAt.Time
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// Revocations stores the IDs of tokens that must no longer be accepted.
type Revocations interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Token is a freshly signed credential.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Manager issues, verifies, refreshes and revokes HS256 tokens.
type Manager struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
	revoked    Revocations
	now        func() time.Time
}

// NewManager builds a Manager. ttl bounds a single token, refreshTTL bounds
// how long after the first login a chain of tokens may be refreshed.
func NewManager(secret string, ttl, refreshTTL time.Duration, revoked Revocations) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	if refreshTTL < ttl {
		refreshTTL = ttl
	}
	return &Manager{
		secret:     []byte(secret),
		ttl:        ttl,
		refreshTTL: refreshTTL,
		revoked:    revoked,
		now:        time.Now,
	}, nil
}

// TTL is the lifetime of a single token.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Generate creates a signed token for the given user.
func (m *Manager) Generate(userID, role string) (Token, error) {
	return m.sign(userID, role, nil)
}

func (m *Manager) sign(userID, role string, origIat *gojwt.NumericDate) (Token, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	id := uuid.New().String()
	claims := Claims{
		UserID:       userID,
		Role:         role,
		OrigIssuedAt: origIat,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(exp),
		},
	}
	if claims.OrigIssuedAt == nil {
		claims.OrigIssuedAt = claims.IssuedAt
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Token{}, fmt.Errorf("creating token: %w", err)
	}
	return Token{Value: signed, ID: id, ExpiresAt: exp}, nil
}

// Validate parses raw and checks signature, expiry and revocation.
func (m *Manager) Validate(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, false)
	if err != nil {
		return nil, err
	}
	if err := m.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefreshable is Validate without the expiry check: an expired
// token is accepted while its refresh window is still open.
func (m *Manager) ValidateRefreshable(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, true)
	if err != nil {
		return nil, err
	}
	if !m.now().Before(claims.refreshStart().Add(m.refreshTTL)) {
		return nil, ErrRefreshExpired
	}
	if err := m.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Refresh revokes the token described by claims and issues its replacement
// for the same subject.
func (m *Manager) Refresh(ctx context.Context, claims *Claims) (Token, error) {
	if claims == nil {
		return Token{}, ErrInvalidToken
	}
	if !m.now().Before(claims.refreshStart().Add(m.refreshTTL)) {
		return Token{}, ErrRefreshExpired
	}
	next, err := m.sign(claims.UserID, claims.Role, gojwt.NewNumericDate(claims.refreshStart()))
	if err != nil {
		return Token{}, err
	}
	if err := m.Revoke(ctx, claims); err != nil {
		return Token{}, err
	}
	return next, nil
}

// Revoke blacklists the token until it could no longer be refreshed.
func (m *Manager) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return ErrInvalidToken
	}
	until := claims.refreshStart().Add(m.refreshTTL)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.After(until) {
		until = claims.ExpiresAt.Time
	}
	if err := m.revoked.Revoke(ctx, claims.ID, until); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (m *Manager) parse(raw string, skipExpiry bool) (*Claims, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithTimeFunc(m.now),
	}
	if skipExpiry {
		opts = append(opts, gojwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, gojwt.WithExpirationRequired())
	}

	token, err := gojwt.ParseWithClaims(raw, &Claims{}, func(t *gojwt.Token) (any, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) checkRevoked(ctx context.Context, claims *Claims) error {
	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return ErrRevokedToken
	}
	return nil
}

// FromHeader extracts the bearer token from the Authorization header.
func FromHeader(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(auth[7:])
	return raw, raw != ""
}
