package flows

import (
	"context"
	"errors"
)

// FailureKind classifies flow failures for root-level mapping. Flows never
// return host sentinels; the Engine owns that translation.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNotReady
	FailureMissingCredential
	FailureMalformed
	FailureExpired
	FailureRevoked
	FailureSessionNotFound
	FailureSessionExpired
	FailureTokenMismatch
	FailurePrincipalInactive
	FailureInvalidCredentials
	FailureLoginLocked
	FailureBackend
	FailureSigning
)

var failureNames = [...]string{
	FailureNone:               "none",
	FailureNotReady:           "not_ready",
	FailureMissingCredential:  "missing_credential",
	FailureMalformed:          "malformed",
	FailureExpired:            "expired",
	FailureRevoked:            "revoked",
	FailureSessionNotFound:    "session_not_found",
	FailureSessionExpired:     "session_expired",
	FailureTokenMismatch:      "token_mismatch",
	FailurePrincipalInactive:  "principal_inactive",
	FailureInvalidCredentials: "invalid_credentials",
	FailureLoginLocked:        "login_locked",
	FailureBackend:            "backend",
	FailureSigning:            "signing",
}

func (k FailureKind) String() string {
	if k >= 0 && int(k) < len(failureNames) {
		return failureNames[k]
	}
	return "unknown"
}

// PrincipalRecord is the flow-local view of a principal.
type PrincipalRecord struct {
	ID           string
	Role         string
	PasswordHash string
	Active       bool
}

// PrincipalLookup resolves a principal by id. Implementations return
// NotFound (as configured in the deps) for unknown ids.
type PrincipalLookup func(ctx context.Context, id string) (PrincipalRecord, error)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Authenticate AuthenticateDeps
	Login        LoginDeps
	Refresh      RefreshDeps
	Logout       LogoutDeps
}

func isNotFound(err, sentinel error) bool {
	return sentinel != nil && errors.Is(err, sentinel)
}

func degradedNoop(context.Context, string, error) {}
