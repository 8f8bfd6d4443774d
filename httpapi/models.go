package httpapi

import "github.com/procuregov/authcore"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful login. ExpiresIn is the access
// token lifetime in seconds.
type LoginResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	SessionID    string        `json:"sessionId"`
	PrincipalID  string        `json:"principalId"`
	Role         authcore.Role `json:"role"`
	ExpiresIn    int64         `json:"expiresIn"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries the new access token. RefreshToken is present
// only when rotation on use is enabled.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}
