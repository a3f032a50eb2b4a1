package app

import (
	"errors"
	"fmt"
	"net/http"

	"ideaforge/api/internal/auth"
	"ideaforge/api/internal/authpw"
	"ideaforge/api/internal/export"
	"ideaforge/api/internal/idea"
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

var kindStatus = map[idea.Kind]int{
	idea.KindInvalidRequest:       http.StatusBadRequest,
	idea.KindUnauthenticated:      http.StatusUnauthorized,
	idea.KindForbidden:            http.StatusForbidden,
	idea.KindNotFound:             http.StatusNotFound,
	idea.KindValidation:           http.StatusUnprocessableEntity,
	idea.KindStoreUnavailable:     http.StatusServiceUnavailable,
	idea.KindSynthesisUnavailable: http.StatusServiceUnavailable,
}

// mapError turns any service error into the response envelope fields.
// Causes of unavailable errors stay in the logs.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var ideaErr *idea.Error
	if errors.As(err, &ideaErr) {
		status, ok := kindStatus[ideaErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		message := ideaErr.Message
		if message == "" {
			message = string(ideaErr.Kind)
		}
		if ideaErr.Field != "" {
			details = map[string]any{"field": ideaErr.Field}
		}
		return status, string(ideaErr.Kind), message, details
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
