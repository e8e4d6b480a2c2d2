// Package validate collects field-level input errors into a single
// apperror validation failure.
package validate

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/example/ec-storefront/internal/apperror"
)

// Fields accumulates field messages. The zero value is ready to use.
type Fields map[string]string

// Add records msg for field unless the field already has a message.
func (f *Fields) Add(field, msg string) {
	if *f == nil {
		*f = make(Fields)
	}
	if _, ok := (*f)[field]; !ok {
		(*f)[field] = msg
	}
}

// Required records msg when v is blank.
func (f *Fields) Required(field, v, msg string) {
	if strings.TrimSpace(v) == "" {
		f.Add(field, msg)
	}
}

// MaxLen records msg when v is longer than n runes.
func (f *Fields) MaxLen(field, v string, n int, msg string) {
	if utf8.RuneCountInString(v) > n {
		f.Add(field, msg)
	}
}

// Email records msg when v is not a bare address.
func (f *Fields) Email(field, v, msg string) {
	if !Email(v) {
		f.Add(field, msg)
	}
}

// Err returns nil when nothing was recorded.
func (f Fields) Err() error {
	if len(f) == 0 {
		return nil
	}
	return apperror.Validation(f)
}

// Email reports whether v is a single address without a display name.
func Email(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == v
}

// NormalizeEmail lower-cases and trims an address for storage and comparison.
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
