package models

import (
	"errors"

	"github.com/go-playground/validator"
)

const (
	MinAPIKeyLength = 30
	MaxAPIKeyLength = 128
)

var (
	ErrAPIKeyMissing = errors.New("api key is missing")
	ErrAPIKeyLength  = errors.New("api key has an invalid length")
	ErrAPIKeyCharset = errors.New("api key contains invalid characters")
)

// ApiKey is a caller supplied provider credential. It is relayed, never owned.
type ApiKey string

func (k ApiKey) Validate() error {
	if k == "" {
		return ErrAPIKeyMissing
	}
	if len(k) < MinAPIKeyLength || len(k) > MaxAPIKeyLength {
		return ErrAPIKeyLength
	}
	for _, r := range string(k) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrAPIKeyCharset
		}
	}
	return nil
}

// Masked keeps the first four characters, enough to tell keys apart in logs.
func (k ApiKey) Masked() string {
	if len(k) <= 4 {
		return "****"
	}
	return string(k[:4]) + "****"
}

func ValidateAPIKey(fl validator.FieldLevel) bool {
	return ApiKey(fl.Field().String()).Validate() == nil
}
