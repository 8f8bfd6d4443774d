package authcore

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrMissingCredential is returned when no bearer or refresh token was presented.
	ErrMissingCredential = errors.New("missing credential")
	// ErrMalformedCredential covers bad signatures, structure, algorithm and token kind.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrExpiredCredential is returned once a token's exp (plus leeway) has passed.
	ErrExpiredCredential = errors.New("expired credential")
	// ErrRevokedCredential is returned for access tokens on the revocation list.
	ErrRevokedCredential = errors.New("revoked credential")
	// ErrSessionNotFound means the session referenced by a token no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired means the session's stored expiry has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrTokenMismatch means a refresh token is not the one bound to its session.
	ErrTokenMismatch = errors.New("refresh token mismatch")
	// ErrPrincipalInactive is returned for principals that are not ACTIVE.
	ErrPrincipalInactive = errors.New("principal inactive")
	// ErrPrincipalNotFound is returned by PrincipalStore implementations for unknown principals.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrInvalidCredentials is returned for a wrong email/password combination.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned when a rate-limit window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrLoginLocked is returned while the caller's IP is locked out after repeated login failures.
	ErrLoginLocked = errors.New("login locked")
	// ErrBackendUnavailable wraps session, revocation, counter and store outages.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAuthenticationFailed is returned when authentication could not complete
	// because a backend failed. It always wraps ErrBackendUnavailable.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrForbidden is returned when an authenticated principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrSigning is returned when a token cannot be signed.
	ErrSigning = errors.New("token signing failed")
	// ErrBadRequest marks request bodies the HTTP layer could not decode.
	ErrBadRequest = errors.New("bad request")
	// ErrEngineNotReady is returned by methods on an engine that was not built.
	ErrEngineNotReady = errors.New("engine not ready")
)

// RetryAfterError decorates a throttling error with the time until the
// caller may try again.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return e.Err.Error() + " (retry after " + e.After.Round(time.Second).String() + ")"
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfter extracts the wait duration from err, if it carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var rae *RetryAfterError
	if errors.As(err, &rae) {
		return rae.After, true
	}
	return 0, false
}

// ErrorKind is the machine-readable code reported to HTTP clients.
type ErrorKind string

const (
	KindMissingCredential   ErrorKind = "MissingCredential"
	KindMalformedCredential ErrorKind = "MalformedCredential"
	KindExpiredCredential   ErrorKind = "ExpiredCredential"
	KindRevokedCredential   ErrorKind = "RevokedCredential"
	KindSessionNotFound     ErrorKind = "SessionNotFound"
	KindSessionExpired      ErrorKind = "SessionExpired"
	KindTokenMismatch       ErrorKind = "TokenMismatch"
	KindPrincipalInactive   ErrorKind = "PrincipalInactive"
	KindInvalidCredentials  ErrorKind = "InvalidCredentials"
	KindAuthentication      ErrorKind = "AuthenticationError"
	KindForbidden           ErrorKind = "Forbidden"
	KindRateLimited         ErrorKind = "RateLimited"
	KindLoginLocked         ErrorKind = "LoginLocked"
	KindBackendUnavailable  ErrorKind = "BackendUnavailable"
	KindBadRequest          ErrorKind = "BadRequest"
	KindInternal            ErrorKind = "InternalError"
)

// Order matters: ErrAuthenticationFailed wraps ErrBackendUnavailable and must
// win over it.
var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrAuthenticationFailed, KindAuthentication},
	{ErrLoginLocked, KindLoginLocked},
	{ErrRateLimited, KindRateLimited},
	{ErrMissingCredential, KindMissingCredential},
	{ErrMalformedCredential, KindMalformedCredential},
	{ErrExpiredCredential, KindExpiredCredential},
	{ErrRevokedCredential, KindRevokedCredential},
	{ErrSessionNotFound, KindSessionNotFound},
	{ErrSessionExpired, KindSessionExpired},
	{ErrTokenMismatch, KindTokenMismatch},
	{ErrPrincipalInactive, KindPrincipalInactive},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrForbidden, KindForbidden},
	{ErrBackendUnavailable, KindBackendUnavailable},
	{ErrBadRequest, KindBadRequest},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps k to the response status: 401 for credential and session
// failures, 403 for role mismatch, 429 for throttling.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindMissingCredential, KindMalformedCredential, KindExpiredCredential,
		KindRevokedCredential, KindSessionNotFound, KindSessionExpired,
		KindTokenMismatch, KindPrincipalInactive, KindInvalidCredentials,
		KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited, KindLoginLocked:
		return http.StatusTooManyRequests
	case KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-facing text for k. It never includes error details.
func (k ErrorKind) Message() string {
	switch k {
	case KindMissingCredential:
		return "authentication required"
	case KindMalformedCredential:
		return "credential is invalid"
	case KindExpiredCredential:
		return "credential has expired"
	case KindRevokedCredential:
		return "credential has been revoked"
	case KindSessionNotFound:
		return "session not found"
	case KindSessionExpired:
		return "session has expired"
	case KindTokenMismatch:
		return "refresh token does not match session"
	case KindPrincipalInactive:
		return "account is not active"
	case KindInvalidCredentials:
		return "invalid email or password"
	case KindAuthentication:
		return "authentication could not be completed"
	case KindForbidden:
		return "insufficient role"
	case KindRateLimited:
		return "too many requests"
	case KindLoginLocked:
		return "too many failed login attempts"
	case KindBackendUnavailable:
		return "service temporarily unavailable"
	case KindBadRequest:
		return "malformed request"
	default:
		return "internal error"
	}
}
