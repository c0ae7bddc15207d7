package app

import (
	"errors"
	"fmt"
	"net/http"

	"realtycrm/api/internal/auth"
	"realtycrm/api/internal/authpw"
	"realtycrm/api/internal/lead"
	"realtycrm/api/internal/messaging"
	"realtycrm/api/internal/objectstore"
	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/scoring"
	"realtycrm/api/internal/store"
	"realtycrm/api/internal/validate"
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

func errUnauthenticated() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil)
}

func errNoProfile() *DomainError {
	return domainError(http.StatusForbidden, "NO_PROFILE", "No company profile for this account", nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errNotFound(entity string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", entity+" not found", nil)
}

func errInvalidStage(value string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_STAGE", "Invalid stage", map[string]any{
		"value":   value,
		"allowed": lead.Stages(),
	})
}

func errInvalidEnum(field string, allowed any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_ENUM", "Invalid value for "+field, map[string]any{
		"field":   field,
		"allowed": allowed,
	})
}

func errBadRequest(message string) *DomainError {
	return domainError(http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

func errValidation(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func errInvalidTransition(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_TRANSITION", message, nil)
}

func errDuplicateEmail() *DomainError {
	return domainError(http.StatusConflict, "DUPLICATE_EMAIL", "Email already in use", nil)
}

func errTargetIsSuperAdmin() *DomainError {
	return domainError(http.StatusConflict, "TARGET_IS_SUPER_ADMIN", "The company owner's role cannot be changed", nil)
}

func errScoringUnavailable() *DomainError {
	return domainError(http.StatusServiceUnavailable, "SCORING_UNAVAILABLE", "Lead scoring is unavailable, try again later", nil)
}

func errMessagingUnavailable(messageID string) *DomainError {
	var details any
	if messageID != "" {
		details = map[string]any{"messageId": messageID}
	}
	return domainError(http.StatusServiceUnavailable, "MESSAGING_UNAVAILABLE", "Message stored but could not be delivered", details)
}

func errStorageUnavailable() *DomainError {
	return domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
}

// authzError converts an rbac decision into the API error taxonomy.
func authzError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rbac.ErrTargetIsSuperAdmin):
		return errTargetIsSuperAdmin()
	case errors.Is(err, rbac.ErrInvalidRole):
		return errInvalidEnum("role", rbac.Roles())
	default:
		return errForbidden()
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		if validationErr.OnlyEnum() {
			return http.StatusUnprocessableEntity, "INVALID_ENUM", "Invalid value", validationErr.Fields
		}
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", validationErr.Fields
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE_EMAIL", "Email already in use", nil
	case errors.Is(err, lead.ErrInvalidStage):
		return http.StatusUnprocessableEntity, "INVALID_STAGE", "Invalid stage", map[string]any{"allowed": lead.Stages()}
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, rbac.ErrTargetIsSuperAdmin):
		return http.StatusConflict, "TARGET_IS_SUPER_ADMIN", "The company owner's role cannot be changed", nil
	case errors.Is(err, rbac.ErrInvalidRole):
		return http.StatusUnprocessableEntity, "INVALID_ENUM", "Invalid role", map[string]any{"field": "role", "allowed": rbac.Roles()}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrInvalidResetToken):
		return http.StatusUnprocessableEntity, "INVALID_TOKEN", "Invalid or expired token", nil
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, scoring.ErrUnavailable):
		return http.StatusServiceUnavailable, "SCORING_UNAVAILABLE", "Lead scoring is unavailable, try again later", nil
	case errors.Is(err, messaging.ErrUnavailable):
		return http.StatusServiceUnavailable, "MESSAGING_UNAVAILABLE", "Messaging gateway unavailable", nil
	case errors.Is(err, objectstore.ErrTooLarge), errors.Is(err, objectstore.ErrUnsupportedType):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
