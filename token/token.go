// Package token inspects raw platform session tokens.
//
// Session tokens arrive as an opaque cookie-format string captured from the
// platform. The package parses that string into named fields, checks that the
// fields an authenticated session requires are present, and — when a field
// value is JWT-shaped — extracts its expiry claim without verifying the
// signature. Nothing here talks to the network; it is the cheap pre-flight
// used before a stored credential is applied.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingSessionField is returned by Preflight when none of the required
// session fields are present in the token set.
var ErrMissingSessionField = errors.New("required session field missing")

// ErrTokenExpired is returned by Preflight when a parsable expiry has passed.
var ErrTokenExpired = errors.New("session token expired")

// Fields is a parsed token set keyed by field name.
type Fields map[string]string

// Parse splits a raw "name=value; name2=value2" token string into Fields.
// Malformed pairs are skipped; values containing '=' are preserved intact.
func Parse(raw string) Fields {
	fields := Fields{}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		fields[name] = value
	}
	return fields
}

// HasAny reports whether at least one of the named fields is present and
// non-empty.
func (f Fields) HasAny(names ...string) bool {
	for _, name := range names {
		if f[name] != "" {
			return true
		}
	}
	return false
}

// Expiry returns the earliest expiry attached to any JWT-shaped field value,
// or zero time when no field carries a parsable expiry. Signatures are not
// verified; the platform signs its own tokens and we only need the claim.
func (f Fields) Expiry() time.Time {
	var earliest time.Time
	parser := jwt.NewParser()
	for _, value := range f {
		if strings.Count(value, ".") != 2 {
			continue
		}
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(value, claims); err != nil {
			continue
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			continue
		}
		if earliest.IsZero() || exp.Time.Before(earliest) {
			earliest = exp.Time
		}
	}
	return earliest
}

// Preflight validates the shape of a raw token string before any network
// activity: at least one of the required session fields must be present, and
// any attached expiry must not have passed.
func Preflight(raw string, required []string, now time.Time) error {
	fields := Parse(raw)
	if !fields.HasAny(required...) {
		return ErrMissingSessionField
	}
	if exp := fields.Expiry(); !exp.IsZero() && exp.Before(now) {
		return ErrTokenExpired
	}
	return nil
}
