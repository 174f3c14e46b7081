package validation

import (
	"fmt"

	dErrors "kopra/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	// Sufficient for JSON APIs while preventing memory exhaustion attacks.
	MaxBodySize = 64 * 1024
)

// Slice element count limits
const (
	// MaxDocumentURLs is the maximum number of uploaded document references
	// per tenant registration.
	MaxDocumentURLs = 10
)

// String element length limits
const (
	// MaxNameLength is the maximum length of a cooperative display name.
	MaxNameLength = 128

	// MaxEmailLength is the maximum length of an email address.
	MaxEmailLength = 255

	// MaxDocumentURLLength is the maximum length of a document reference URL.
	MaxDocumentURLLength = 2048

	// MaxReasonLength is the maximum length of a rejection reason.
	MaxReasonLength = 1000

	// MinReasonLength is the minimum length of a rejection reason.
	MinReasonLength = 5
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates every element of a slice against a maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if err := CheckStringLength(fieldName, v, max); err != nil {
			return err
		}
	}
	return nil
}
