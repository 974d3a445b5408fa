package model

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// EncodeKey renders an arbitrary identifier (room id, part name) as a
// path-safe base64url token without padding.
func EncodeKey(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.TrimSpace(s)))
}

// DecodeKey reverses EncodeKey. Only canonical tokens decode.
func DecodeKey(key string) (string, error) {
	b, err := base64.RawURLEncoding.Strict().DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidKey
	}
	return string(b), nil
}
