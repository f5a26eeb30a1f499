// Package validate provides a chainable Validator that collects form field
// errors before any request reaches the backend. Err returns a single
// validation AppError listing every failed field.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/meridianhq/corpweb/internal/apperror"
)

// MinPasswordLen is the shortest password the forms accept.
const MinPasswordLen = 6

// MaxPasswordLen bounds password input.
const MaxPasswordLen = 128

// Validator collects field-level errors. Not safe for concurrent use; build
// one per form submission.
type Validator struct {
	errs []apperror.FieldError
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{}
}

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MinLen fails if the rune count is below min. Empty values are left to
// Required.
func (v *Validator) MinLen(field, value string, min int) *Validator {
	if value != "" && utf8.RuneCountInString(value) < min {
		v.add(field, fmt.Sprintf("Must be at least %d characters", min))
	}
	return v
}

// MaxLen fails if the rune count exceeds max.
func (v *Validator) MaxLen(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("Must be at most %d characters", max))
	}
	return v
}

// Email fails if a non-empty value is not a bare address.
func (v *Validator) Email(field, value string) *Validator {
	value = strings.TrimSpace(value)
	if value == "" {
		return v
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		v.add(field, "Must be a valid email address")
	}
	return v
}

// Match fails if value differs from other.
func (v *Validator) Match(field, value, other, message string) *Validator {
	if value != other {
		v.add(field, message)
	}
	return v
}

// Password applies the password rules: required, length bounds.
func (v *Validator) Password(field, value string) *Validator {
	return v.Required(field, value).
		MinLen(field, value, MinPasswordLen).
		MaxLen(field, value, MaxPasswordLen)
}

// Custom adds a failure with message when failed is true.
func (v *Validator) Custom(field string, failed bool, message string) *Validator {
	if failed {
		v.add(field, message)
	}
	return v
}

// HasErrors reports whether any rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

// Fields returns the failures keyed by field, first message wins.
func (v *Validator) Fields() map[string]string {
	out := make(map[string]string, len(v.errs))
	for _, e := range v.errs {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// Err returns a validation AppError if any rule failed, or nil.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return apperror.NewValidation(v.errs[0].Message, v.errs...)
}

func (v *Validator) add(field, message string) {
	v.errs = append(v.errs, apperror.FieldError{Field: field, Message: message})
}

// FieldMap flattens a validation error's fields for form rendering.
func FieldMap(err error) map[string]string {
	appErr := apperror.As(err)
	if appErr == nil || len(appErr.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(appErr.Fields))
	for _, f := range appErr.Fields {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Message
		}
	}
	return out
}
