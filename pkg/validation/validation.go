package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"covoiturage/pkg/apperr"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// PhoneFormat allows digits, '+', '-' and whitespace only.
	PhoneFormat = regexp.MustCompile(`^[0-9+\-\s]+$`)
)

// Type names used in "must be ..." messages.
const (
	KindString = "a string"
	KindNumber = "a number"
	KindBool   = "true or false"
)

func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && emailRegex.MatchString(email)
}

// Validator collects field-level rule violations.
type Validator struct {
	errs apperr.Fields
}

func New() *Validator {
	return &Validator{errs: apperr.Fields{}}
}

// Add records msg against field.
func (v *Validator) Add(field, msg string) {
	v.errs[field] = append(v.errs[field], msg)
}

// Has reports whether field already failed a rule.
func (v *Validator) Has(field string) bool {
	return len(v.errs[field]) > 0
}

// Valid reports whether no rule failed.
func (v *Validator) Valid() bool { return len(v.errs) == 0 }

// Err returns a validation *apperr.Error, or nil when every rule passed.
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	return apperr.Validation(v.errs)
}

// Check adds msg against field when ok is false.
func (v *Validator) Check(ok bool, field, msg string) {
	if !ok {
		v.Add(field, msg)
	}
}

func (v *Validator) MaxLen(field, s string, n int) {
	if utf8.RuneCountInString(s) > n {
		v.Add(field, fmt.Sprintf("The %s must not be greater than %d characters.", Attr(field), n))
	}
}

func (v *Validator) MinLen(field, s string, n int) {
	if utf8.RuneCountInString(s) < n {
		v.Add(field, fmt.Sprintf("The %s must be at least %d characters.", Attr(field), n))
	}
}

// MaxBytes limits the encoded size of s, for values such as bcrypt input
// that are bounded in bytes rather than characters.
func (v *Validator) MaxBytes(field, s string, n int) {
	if len(s) > n {
		v.Add(field, fmt.Sprintf("The %s must not be greater than %d bytes.", Attr(field), n))
	}
}

func (v *Validator) Email(field, s string) {
	if !ValidateEmail(s) {
		v.Add(field, fmt.Sprintf("The %s must be a valid email address.", Attr(field)))
	}
}

func (v *Validator) Pattern(field, s string, re *regexp.Regexp) {
	if !re.MatchString(s) {
		v.Add(field, fmt.Sprintf("The %s format is invalid.", Attr(field)))
	}
}

func (v *Validator) OneOf(field, s string, allowed ...string) {
	for _, a := range allowed {
		if s == a {
			return
		}
	}
	v.Add(field, Selected(field))
}

func (v *Validator) Between(field string, x, min, max float64) {
	if x < min || x > max {
		v.Add(field, fmt.Sprintf("The %s must be between %g and %g.", Attr(field), min, max))
	}
}

// Confirmed checks s against the "<field>_confirmation" value.
func (v *Validator) Confirmed(field, s string, confirmation Field[string]) {
	if !confirmation.Present() || confirmation.Value != s {
		v.Add(field, fmt.Sprintf("The %s confirmation does not match.", Attr(field)))
	}
}

// Required checks that f was sent, is not null, has the right JSON type
// and, for strings, is not blank. It reports whether further rules apply.
func Required[T any](v *Validator, field string, f Field[T], kind string) bool {
	if !f.Set || f.Null {
		v.Add(field, fmt.Sprintf("The %s field is required.", Attr(field)))
		return false
	}
	return typed(v, field, f, kind, true)
}

// Sometimes applies Required only when the client sent the field.
func Sometimes[T any](v *Validator, field string, f Field[T], kind string) bool {
	if !f.Set {
		return false
	}
	return Required(v, field, f, kind)
}

// Nullable accepts an absent or null field and type-checks anything else.
// It reports whether further rules apply.
func Nullable[T any](v *Validator, field string, f Field[T], kind string) bool {
	if !f.Set || f.Null {
		return false
	}
	return typed(v, field, f, kind, false)
}

func typed[T any](v *Validator, field string, f Field[T], kind string, required bool) bool {
	if f.Invalid {
		if kind == KindBool {
			v.Add(field, fmt.Sprintf("The %s field must be %s.", Attr(field), kind))
		} else {
			v.Add(field, fmt.Sprintf("The %s must be %s.", Attr(field), kind))
		}
		return false
	}
	if s, ok := any(f.Value).(string); ok && strings.TrimSpace(s) == "" {
		if required {
			v.Add(field, fmt.Sprintf("The %s field is required.", Attr(field)))
		}
		return false
	}
	return true
}

// Taken is the uniqueness message for field.
func Taken(field string) string {
	return fmt.Sprintf("The %s has already been taken.", Attr(field))
}

// Selected is the message for a value outside an allowed set or a
// reference to a missing row.
func Selected(field string) string {
	return fmt.Sprintf("The selected %s is invalid.", Attr(field))
}

// Attr renders a field name for messages.
func Attr(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
