package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// ErrorCode is a machine-readable error classification.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeNotFound             ErrorCode = "not_found"
	CodeMatchError           ErrorCode = "match_error"
	CodeFieldNotFound        ErrorCode = "field_not_found"
	CodeAttributeNotFound    ErrorCode = "attribute_not_found"
	CodeUnsupportedCondition ErrorCode = "unsupported_condition"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound, false),
		sentinelHandler(domain.ErrStreamNotFound, http.StatusNotFound, CodeNotFound, false),
		sentinelHandler(domain.ErrFieldNotFound, http.StatusBadRequest, CodeFieldNotFound, true),
		sentinelHandler(domain.ErrAttributeNotFound, http.StatusBadRequest, CodeAttributeNotFound, true),
		sentinelHandler(domain.ErrUnsupportedCondition, http.StatusBadRequest, CodeUnsupportedCondition, true),
		sentinelHandler(domain.ErrMatch, http.StatusBadRequest, CodeMatchError, true),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed, true),
	}
}

// sentinelHandler maps errors wrapping sentinel to status. Client input errors carry their
// full message; everything else only exposes the sentinel text.
func sentinelHandler(sentinel error, status int, code ErrorCode, detailed bool) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if detailed {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
