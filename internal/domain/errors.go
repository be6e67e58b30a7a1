package domain

import "errors"

// Domain errors
var (
	ErrNoCheckIns         = errors.New("No check-ins found for user")
	ErrBadgeNotFound      = errors.New("badge not found")
	ErrBadgeAlreadyEarned = errors.New("badge already earned by user")
	ErrBadgeNotEarned     = errors.New("badge not earned by user")
	ErrCheckInNotFound    = errors.New("check-in not found")
	ErrInvalidBadge       = errors.New("invalid badge definition")
	ErrInvalidCheckIn     = errors.New("invalid check-in")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBadgeNotFound) ||
		errors.Is(err, ErrBadgeNotEarned) ||
		errors.Is(err, ErrCheckInNotFound) ||
		errors.Is(err, ErrNoCheckIns)
}

// IsValidationError checks if an error was caused by bad caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidBadge) ||
		errors.Is(err, ErrInvalidCheckIn) ||
		errors.Is(err, ErrInvalidRequest)
}
