// Package validation checks operator supplied settings before they reach the
// filesystem, the outgoing HTTP requests or the CORS headers.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Limits on configured values.
const (
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxHeaderValueLength bounds values sent as request headers.
	MaxHeaderValueLength = 512
)

// Common validation errors.
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character")
	ErrInvalidOrigin    = errors.New("invalid origin")
	ErrInvalidHeader    = errors.New("invalid header value")
)

// ValidatePath rejects empty paths, overlong paths and paths containing
// control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	if hasControl(path) {
		return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
	}
	return nil
}

// ValidateOrigin checks a CORS origin of the form scheme://host[:port].
func ValidateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidOrigin, origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidOrigin, origin)
	}
	if u.Host == "" {
		return fmt.Errorf("%w %q: missing host", ErrInvalidOrigin, origin)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return fmt.Errorf("%w %q: only scheme, host and port are allowed", ErrInvalidOrigin, origin)
	}
	return nil
}

// ValidateHeaderValue checks a value that is sent verbatim as an HTTP header.
func ValidateHeaderValue(value string) error {
	if len(value) > MaxHeaderValueLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidHeader, MaxHeaderValueLength)
	}
	if hasControl(value) {
		return fmt.Errorf("%w: control character not allowed", ErrInvalidHeader)
	}
	return nil
}

func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
