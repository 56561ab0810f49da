package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/networking-rounds/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	return logging.Component(ctx, base, "service", serviceName, operation, attrs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRegistrationClosed):
		return "registration_closed"
	case errors.Is(err, ErrTooLateToCancel):
		return "too_late_to_cancel"
	case errors.Is(err, ErrConfirmationClosed):
		return "confirmation_closed"
	case errors.Is(err, ErrCheckInClosed):
		return "check_in_closed"
	case errors.Is(err, ErrInvalidVerificationCode):
		return "invalid_verification_code"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var tErr *TransientStoreError
	if errors.As(err, &tErr) {
		return "transient_store"
	}

	return "unexpected"
}
