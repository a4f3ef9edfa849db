package fedsearch

import (
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// Sentinel errors matched by APIError. Use errors.Is() to check.
var (
	ErrNotFound             = domain.ErrNotFound
	ErrInvalidRequest       = domain.ErrInvalidRequest
	ErrMatch                = domain.ErrMatch
	ErrFieldNotFound        = domain.ErrFieldNotFound
	ErrAttributeNotFound    = domain.ErrAttributeNotFound
	ErrUnsupportedCondition = domain.ErrUnsupportedCondition
)

var codeSentinels = map[string]error{
	"not_found":             ErrNotFound,
	"bad_request":           ErrInvalidRequest,
	"validation_failed":     ErrInvalidRequest,
	"match_error":           ErrMatch,
	"field_not_found":       ErrFieldNotFound,
	"attribute_not_found":   ErrAttributeNotFound,
	"unsupported_condition": ErrUnsupportedCondition,
}

// APIError is an error answer of the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fedsearch: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the error code to its sentinel.
func (e *APIError) Unwrap() error { return codeSentinels[e.Code] }
