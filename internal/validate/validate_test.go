package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/validate"
)

func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		hasError bool
	}{
		{"valid", "Meridian", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validate.New().Required("name", tt.value)
			assert.Equal(t, tt.hasError, v.HasErrors())
		})
	}
}

func TestValidator_Password(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		message string
	}{
		{"ok", "secret1", ""},
		{"exactly six", "abcdef", ""},
		{"too short", "short", "Must be at least 6 characters"},
		{"empty", "", "This field is required"},
		{"multibyte counts runes", "ééééé", "Must be at least 6 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validate.New().Password("password", tt.value).Fields()
			assert.Equal(t, tt.message, fields["password"])
		})
	}
}

func TestValidator_Email(t *testing.T) {
	tests := []struct {
		email   string
		isValid bool
	}{
		{"alice@example.com", true},
		{"a.b+tag@sub.example.co", true},
		{"", true},
		{"alice", false},
		{"alice@localhost", false},
		{"Alice <alice@example.com>", false},
		{"@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			v := validate.New().Email("email", tt.email)
			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

func TestValidator_Match(t *testing.T) {
	v := validate.New().Match("confirm", "abcdef", "abcdeg", "Passwords do not match")
	assert.Equal(t, "Passwords do not match", v.Fields()["confirm"])

	assert.False(t, validate.New().Match("confirm", "x", "x", "no").HasErrors())
}

func TestValidator_ErrCollectsAllFields(t *testing.T) {
	err := validate.New().
		Required("first_name", "").
		Email("email", "nope").
		Password("password", "short").
		Match("confirm", "short", "shor", "Passwords do not match").
		Err()
	require.Error(t, err)

	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.TypeValidation, appErr.Type)
	assert.Equal(t, 422, appErr.Code)
	assert.Len(t, appErr.Fields, 4)

	fields := validate.FieldMap(err)
	assert.Contains(t, fields, "first_name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "confirm")
}

func TestValidator_NoErrors(t *testing.T) {
	assert.NoError(t, validate.New().Required("a", "b").Err())
	assert.Nil(t, validate.FieldMap(nil))
}
