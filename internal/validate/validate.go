// Package validate accumulates configuration problems so a bad config
// reports every issue at once instead of failing one field at a time.
package validate

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Error describes a single rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is the combined result of a failed validation pass.
type ValidationError struct {
	errors []Error
}

// Errors returns the individual field errors.
func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	switch len(e.errors) {
	case 0:
		return ""
	case 1:
		return e.errors[0].Error()
	}
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validator collects field errors across a validation pass.
type Validator struct {
	errors []Error
}

// New returns an empty Validator.
func New() *Validator { return &Validator{} }

// AddError records a failed field with its offending value.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Message: message, Value: value})
}

// IsValid reports whether every check so far passed.
func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Errors returns the collected field errors.
func (v *Validator) Errors() []Error { return v.errors }

// Err returns nil when every check passed, otherwise a ValidationError
// carrying all collected field errors.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// NotEmpty rejects empty or whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf rejects values outside the allowed set.
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
	}
}

// Positive rejects integers at or below zero.
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// NonNegative rejects integers below zero.
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

// Range rejects integers outside [lo, hi].
func (v *Validator) Range(field string, value, lo, hi int) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("value must be between %d and %d, got %d", lo, hi, value), value)
	}
}

// FloatRange rejects floats outside [lo, hi].
func (v *Validator) FloatRange(field string, value, lo, hi float64) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("value must be between %g and %g, got %g", lo, hi, value), value)
	}
}

// URL rejects strings that do not parse as a URL with a host, or whose
// scheme falls outside allowedSchemes when that list is non-empty.
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(allowedSchemes) > 0 && !slices.Contains(allowedSchemes, u.Scheme) {
		v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes), value)
	}
}

// Directory rejects paths that are empty, contain traversal segments, or
// point at something other than a directory. With mustExist false a
// missing directory is created on the spot.
func (v *Validator) Directory(field, path string, mustExist bool) {
	if path == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}
	if strings.Contains(path, "..") {
		v.AddError(field, "path contains traversal sequences (..)", path)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid path: %v", err), path)
		return
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if !info.IsDir() {
			v.AddError(field, "path is not a directory", path)
		}
	case os.IsNotExist(err):
		if mustExist {
			v.AddError(field, "directory does not exist", path)
		} else if mkErr := os.MkdirAll(abs, 0o750); mkErr != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", mkErr), path)
		}
	default:
		v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
	}
}
