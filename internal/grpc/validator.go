package server

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const maxTokenLength = 4096

var (
	errMissingKey   = errors.New("missing sensor key")
	errMissingToken = errors.New("missing token")
)

type RequestValidator struct {
	maxTokenLength int
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{maxTokenLength: maxTokenLength}
}

// ValidateSensorKey rejects keys that cannot name a sensor. Unknown but well
// formed keys pass and are reported as not found by the lookup.
func (v *RequestValidator) ValidateSensorKey(key string) error {
	if key == "" {
		return errMissingKey
	}
	for _, r := range key {
		if r != '_' && !unicode.IsLower(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("invalid sensor key: %q", key)
		}
	}
	return nil
}

// ValidateToken checks the shape of a bearer token before it is sent upstream.
func (v *RequestValidator) ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errMissingToken
	}
	if len(token) > v.maxTokenLength {
		return fmt.Errorf("token exceeds %d characters", v.maxTokenLength)
	}
	if strings.ContainsFunc(token, unicode.IsSpace) {
		return errors.New("token must not contain whitespace")
	}
	return nil
}
