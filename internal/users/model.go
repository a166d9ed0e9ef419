package users

import (
	"time"

	"covoiturage/internal/authz"
	"covoiturage/pkg/validation"
)

// User represents an account: passenger, driver or admin.
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Username         string     `json:"username"`
	Email            *string    `json:"email"`
	PhoneNumber      string     `json:"phone_number"`
	PasswordHash     string     `json:"-"`
	Role             authz.Role `json:"role"`
	IsOnline         bool       `json:"isOnline"`
	IsMobileVerified bool       `json:"isMobileVerified"`
	OTP              *string    `json:"otp"`
	Longitude        *float64   `json:"longitude"`
	Latitude         *float64   `json:"latitude"`
	EmailVerifiedAt  *time.Time `json:"email_verified_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CreateRequest is the body for POST /auth/register and POST /users.
type CreateRequest struct {
	Name                 validation.Field[string] `json:"name"`
	Username             validation.Field[string] `json:"username"`
	PhoneNumber          validation.Field[string] `json:"phone_number"`
	Email                validation.Field[string] `json:"email"`
	Password             validation.Field[string] `json:"password"`
	PasswordConfirmation validation.Field[string] `json:"password_confirmation"`
	Role                 validation.Field[string] `json:"role"`
}

// UpdateRequest is the body for PUT/PATCH /users/{id}. Every field is
// optional; absent fields are left untouched.
type UpdateRequest struct {
	Name                 validation.Field[string]  `json:"name"`
	Username             validation.Field[string]  `json:"username"`
	PhoneNumber          validation.Field[string]  `json:"phone_number"`
	Email                validation.Field[string]  `json:"email"`
	Password             validation.Field[string]  `json:"password"`
	PasswordConfirmation validation.Field[string]  `json:"password_confirmation"`
	Role                 validation.Field[string]  `json:"role"`
	Longitude            validation.Field[float64] `json:"longitude"`
	Latitude             validation.Field[float64] `json:"latitude"`
	OTP                  validation.Field[string]  `json:"otp"`
	IsOnline             validation.Field[bool]    `json:"isOnline"`
	IsMobileVerified     validation.Field[bool]    `json:"isMobileVerified"`
}

// ChangePasswordRequest is the body for POST /users/change-password.
type ChangePasswordRequest struct {
	CurrentPassword         validation.Field[string] `json:"current_password"`
	NewPassword             validation.Field[string] `json:"new_password"`
	NewPasswordConfirmation validation.Field[string] `json:"new_password_confirmation"`
}

// ListParams filters and pages GET /users.
type ListParams struct {
	Search  string
	Page    int
	PerPage int
}

// Offset is the number of rows skipped before the page.
func (p ListParams) Offset() int { return (p.Page - 1) * p.PerPage }

// Pagination is the metadata returned next to a page of users.
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
}

// Page is one page of users, newest first.
type Page struct {
	Items      []User
	Pagination Pagination
}

// Stats counts accounts by creation period.
type Stats struct {
	TotalUsers     int64 `json:"total_users"`
	UsersToday     int64 `json:"users_today"`
	UsersThisWeek  int64 `json:"users_this_week"`
	UsersThisMonth int64 `json:"users_this_month"`
}
