package authcore

import (
	"context"
	"time"
)

// Role is the coarse authorization class of a principal.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleSupplier Role = "SUPPLIER"
	RoleAgency   Role = "AGENCY"
	RoleCitizen  Role = "CITIZEN"
	RoleAuditor  Role = "AUDITOR"
)

// Valid reports whether r is one of the platform roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupplier, RoleAgency, RoleCitizen, RoleAuditor:
		return true
	}
	return false
}

// PrincipalStatus is the lifecycle state owned by the entity store.
type PrincipalStatus string

const (
	StatusActive    PrincipalStatus = "ACTIVE"
	StatusPending   PrincipalStatus = "PENDING"
	StatusSuspended PrincipalStatus = "SUSPENDED"
	StatusInactive  PrincipalStatus = "INACTIVE"
)

// Principal is the read-only view of a user taken from the entity store.
type Principal struct {
	ID           string
	Email        string
	Role         Role
	Status       PrincipalStatus
	PasswordHash string
}

// Active reports whether p may authenticate.
func (p Principal) Active() bool { return p.Status == StatusActive }

// PrincipalStore is the entity store as seen by this package. Both lookups
// return an error wrapping [ErrPrincipalNotFound] for unknown principals.
// FindPrincipalByEmail receives an already normalized address.
type PrincipalStore interface {
	FindPrincipalByID(ctx context.Context, id string) (Principal, error)
	FindPrincipalByEmail(ctx context.Context, email string) (Principal, error)
}

// Identity is attached to an authenticated request.
type Identity struct {
	PrincipalID string    `json:"principalId"`
	Role        Role      `json:"role"`
	SessionID   string    `json:"sessionId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// HasRole reports whether the identity holds any of roles.
func (id *Identity) HasRole(roles ...Role) bool {
	if id == nil {
		return false
	}
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	PrincipalID  string
	Role         Role
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// RefreshResult is returned by [Engine.Refresh]. RefreshToken is set only
// when rotation on use is enabled.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// RateDecision is the outcome of [Engine.TryAcquire]. Degraded is set when
// the counter backend failed and the request was let through.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Degraded   bool
}
