package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
)

// classError is a user-facing failure that belongs to one of the classes above.
// Its message is returned to clients unchanged.
type classError struct {
	msg   string
	class error
}

func (e *classError) Error() string { return e.msg }
func (e *classError) Unwrap() error { return e.class }

// Auth flow failures. errors.Is matches both the specific failure and its class.
var (
	ErrDuplicateEmail          error = &classError{"email already exists", ErrConflict}
	ErrWeakPassword            error = &classError{"password does not meet policy", ErrBadRequest}
	ErrInvalidCredentials      error = &classError{"invalid email or password", ErrUnauthorized}
	ErrEmailNotConfirmed       error = &classError{"email not confirmed", ErrForbidden}
	ErrInvalidCode             error = &classError{"invalid 2FA code", ErrBadRequest}
	ErrInvalidOrExpiredOtp     error = &classError{"invalid or expired OTP", ErrBadRequest}
	ErrTooSoonForOtp           error = &classError{"you must wait before requesting a new OTP", ErrTooManyRequests}
	ErrInvalidOrExpiredRefresh error = &classError{"invalid or expired refresh token", ErrUnauthorized}
	ErrInvalidToken            error = &classError{"invalid token", ErrBadRequest}
)
