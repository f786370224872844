package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"okrhub/api/internal/auth"
	"okrhub/api/internal/export"
	"okrhub/api/internal/okr"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func forbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func invalid(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]fieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, fieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", fields
	}
	switch {
	case errors.Is(err, okr.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, okr.ErrSelfAlignment):
		return http.StatusUnprocessableEntity, "SELF_ALIGNMENT", "An objective cannot align with itself", nil
	case errors.Is(err, okr.ErrInvalidAlignmentEnd):
		return http.StatusUnprocessableEntity, "UNKNOWN_OBJECTIVE", "Alignment references an unknown objective", nil
	case errors.Is(err, okr.ErrDuplicateAlignment):
		return http.StatusConflict, "DUPLICATE_ALIGNMENT", "These objectives are already aligned", nil
	case errors.Is(err, okr.ErrCycle):
		return http.StatusConflict, "ALIGNMENT_CYCLE", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf, docx or csv", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "The hierarchy took too long to load", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
