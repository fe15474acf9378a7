package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	platformlogging "github.com/zenGate-Global/aso-insight/platform/go/logging"
	"github.com/zenGate-Global/aso-insight/platform/go/metrics"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

const (
	TypeValidation      = "https://aso-insight.dev/problems/validation-error"
	TypeUnauthenticated = "https://aso-insight.dev/problems/unauthenticated"
	TypeForbidden       = "https://aso-insight.dev/problems/forbidden"
	TypeNotFound        = "https://aso-insight.dev/problems/not-found"
	TypeConflict        = "https://aso-insight.dev/problems/conflict"
	TypeQuota           = "https://aso-insight.dev/problems/quota-exceeded"
	TypeInternal        = "https://aso-insight.dev/problems/internal-error"
)

const contentType = "application/problem+json"

// maxBodyBytes bounds request payloads read by DecodeJSON.
const maxBodyBytes = 1 << 20

// Details is an RFC 9457 problem document.
type Details struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// Responder writes JSON payloads and maps errors to problem documents.
type Responder struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewResponder builds a Responder. m may be nil.
func NewResponder(logger *zap.Logger, m *metrics.Metrics) *Responder {
	if logger == nil {
		panic("logger is required")
	}
	return &Responder{logger: logger, metrics: m}
}

// JSON writes v with status.
func (rs *Responder) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.logger.Warn("encode response", zap.Error(err))
	}
}

// NoContent writes 204.
func (rs *Responder) NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error classifies err, logs it by status class and writes the problem document.
// Denials are logged at info level.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, op string, err error) {
	details := Classify(err)

	logger := platformlogging.FromContextOr(r.Context(), rs.logger)
	fields := []zap.Field{
		zap.String("operation", op),
		zap.Int("status", details.Status),
		zap.Error(err),
	}

	switch {
	case details.Status >= http.StatusInternalServerError:
		if errors.Is(err, persistence.ErrPolicyEvaluation) {
			rs.metrics.ObservePolicyError()
			logger.Error("row level policy evaluation failed", fields...)
		} else {
			logger.Error("operation failed", fields...)
		}
	case details.Status == http.StatusNotFound, details.Status == http.StatusForbidden:
		logger.Info("request denied or resource missing", fields...)
	default:
		logger.Warn("request rejected", fields...)
	}

	Write(w, details)
}

// Classify maps err to a problem document. Unknown errors become 500 with a
// generic detail so internals never leak.
func Classify(err error) Details {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		return Details{
			Type:   TypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: "one or more fields are invalid",
			Errors: copyFields(validationErr.Fields),
		}
	case errors.Is(err, platformauth.ErrUnauthenticated), errors.Is(err, platformauth.ErrInvalidSubject):
		return Details{Type: TypeUnauthenticated, Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: err.Error()}
	case errors.Is(err, ErrNotFound):
		return Details{Type: TypeNotFound, Title: "Resource not found", Status: http.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, ErrForbidden):
		return Details{Type: TypeForbidden, Title: "Forbidden", Status: http.StatusForbidden, Detail: err.Error()}
	case errors.Is(err, ErrConflict):
		return Details{Type: TypeConflict, Title: "Conflict", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, ErrQuotaExceeded):
		return Details{Type: TypeQuota, Title: "Quota exceeded", Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	default:
		return Details{Type: TypeInternal, Title: "Internal server error", Status: http.StatusInternalServerError, Detail: "an unexpected error occurred"}
	}
}

// Write sends details as application/problem+json.
func Write(w http.ResponseWriter, details Details) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(details.Status)
	_ = json.NewEncoder(w).Encode(details)
}

// DecodeJSON reads a single JSON object from the request body into dst.
// Malformed or unknown fields yield a ValidationError on "body".
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return Invalid("body", "request body is required")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return Invalid("body", "request body is required")
		}
		return Invalid("body", fmt.Sprintf("invalid JSON: %s", strings.TrimPrefix(err.Error(), "json: ")))
	}
	if dec.More() {
		return Invalid("body", "request body must contain a single JSON object")
	}
	return nil
}

func copyFields(fields FieldErrors) map[string][]string {
	if len(fields) == 0 {
		return nil
	}
	copied := make(map[string][]string, len(fields))
	for field, messages := range fields {
		copied[field] = append([]string(nil), messages...)
	}
	return copied
}
