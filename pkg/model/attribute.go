package model

import (
	"errors"
	"unicode/utf8"
)

const (
	MinAttributeKeyLength   = 2
	MaxAttributeKeyLength   = 100
	MaxAttributeValueLength = 65535
)

var ErrAttributeKeyInvalid = errors.New("attribute key must be 2-100 alphanumeric, hyphen, underscore or dot characters")
var ErrAttributeValueTooLong = errors.New("attribute value too long")

// ValidateAttributeKey checks an attribute key against the allowed format.
func ValidateAttributeKey(key string) error {
	if len(key) < MinAttributeKeyLength || len(key) > MaxAttributeKeyLength {
		return ErrAttributeKeyInvalid
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return ErrAttributeKeyInvalid
		}
	}
	return nil
}

// ValidateAttributeValue checks an attribute value fits in a stored field.
func ValidateAttributeValue(value string) error {
	if utf8.RuneCountInString(value) > MaxAttributeValueLength {
		return ErrAttributeValueTooLong
	}
	return nil
}
