package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes the two credential families. Each kind is signed with
// its own secret, so a token of one kind never verifies as the other.
type Kind string

const (
	// KindAccess marks short-lived bearer credentials.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived credentials exchanged for new access tokens.
	KindRefresh Kind = "refresh"
)

var (
	// ErrSigningKeyMissing is returned by issue calls when the secret for the
	// requested kind was never configured.
	ErrSigningKeyMissing = errors.New("signing key missing")
	// ErrMalformed covers every structural, signature, algorithm, kind,
	// issuer and audience failure.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned when exp (plus leeway) has passed.
	ErrExpired = errors.New("token expired")
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	Now           func() time.Time
}

// Subject is the identity material encoded into both token kinds.
type Subject struct {
	PrincipalID string
	Role        string
	SessionID   string
}

// Claims is the decoded payload of a verified token.
type Claims struct {
	PrincipalID string `json:"pid"`
	Role        string `json:"role"`
	SessionID   string `json:"sid"`
	Kind        Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// Subject returns the identity fields of c.
func (c *Claims) Subject() Subject {
	return Subject{PrincipalID: c.PrincipalID, Role: c.Role, SessionID: c.SessionID}
}

// Manager signs and verifies access and refresh tokens with HS256.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a ready [Manager].
//
// Secrets may be left empty; issuing a token of that kind then fails with
// [ErrSigningKeyMissing]. When both secrets are set they must differ.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.AccessSecret) > 0 && string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Leeway returns the clock tolerance applied during verification.
func (m *Manager) Leeway() time.Duration { return m.config.Leeway }

// IssueAccess signs an access token for sub with exp = now + AccessTTL.
func (m *Manager) IssueAccess(sub Subject) (string, error) {
	return m.issue(sub, KindAccess)
}

// IssueRefresh signs a refresh token for sub with exp = now + RefreshTTL.
func (m *Manager) IssueRefresh(sub Subject) (string, error) {
	return m.issue(sub, KindRefresh)
}

func (m *Manager) issue(sub Subject, kind Kind) (string, error) {
	secret, ttl := m.keyFor(kind)
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: %s", ErrSigningKeyMissing, kind)
	}

	now := m.config.Now()
	claims := Claims{
		PrincipalID: sub.PrincipalID,
		Role:        sub.Role,
		SessionID:   sub.SessionID,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature, structure and expiry of token for the given kind.
//
// It returns an error wrapping [ErrExpired] when the token is past exp and
// [ErrMalformed] for everything else. It never makes business decisions.
func (m *Manager) Verify(token string, kind Kind) (*Claims, error) {
	secret, _ := m.keyFor(kind)
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: no %s verification key", ErrMalformed, kind)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: unexpected token kind %q", ErrMalformed, claims.Kind)
	}
	if claims.PrincipalID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing subject claims", ErrMalformed)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrMalformed)
	}

	return claims, nil
}

func (m *Manager) keyFor(kind Kind) ([]byte, time.Duration) {
	switch kind {
	case KindAccess:
		return m.config.AccessSecret, m.config.AccessTTL
	case KindRefresh:
		return m.config.RefreshSecret, m.config.RefreshTTL
	default:
		return nil, 0
	}
}
