package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/middleware"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", authcore.ErrBadRequest, err)
	}
	return nil
}

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	res, err := a.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		SessionID:    res.SessionID,
		PrincipalID:  res.PrincipalID,
		Role:         res.Role,
		ExpiresIn:    int64(res.ExpiresIn.Seconds()),
	})
}

// Refresh handles POST /auth/refresh.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteError(w, authcore.ErrMissingCredential)
		return
	}

	res, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    int64(res.ExpiresIn.Seconds()),
	})
}

// Logout handles POST /auth/logout. The access token that authenticated the
// request is the one revoked.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		middleware.WriteError(w, authcore.ErrMissingCredential)
		return
	}
	if err := a.engine.Logout(r.Context(), token); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := authcore.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, authcore.ErrMissingCredential)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, id)
}
