package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"taskhub.org/internal/audit"
	"taskhub.org/internal/auth"
)

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	ID               string    `json:"id"`
	Token            string    `json:"token"`
	RefreshToken     string    `json:"refreshToken"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Roles            []string  `json:"roles"`
	TokenExpiresAt   time.Time `json:"tokenExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.cfg.Sessions.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	principal := session.Principal

	_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{
		"user_id":  principal.ID().String(),
		"username": principal.Username(),
	})

	writeJSON(w, http.StatusOK, authResponse{
		ID:               principal.ID().String(),
		Token:            session.Tokens.AccessToken,
		RefreshToken:     session.Tokens.RefreshToken,
		Username:         principal.Username(),
		Email:            principal.Email(),
		Roles:            auth.RoleNames(principal.Roles()),
		TokenExpiresAt:   session.Tokens.AccessExpiresAt,
		RefreshExpiresAt: session.Tokens.RefreshExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, err := a.cfg.Sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.cfg.Sessions.Logout(r.Context(), principal); err != nil {
		writeDomainError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"username": principal.Username(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("User %s logged out", principal.Username()),
	})
}

type registerRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	roles := make([]auth.Role, 0, len(req.Roles))
	for _, raw := range req.Roles {
		roles = append(roles, auth.ParseRole(raw))
	}

	user, err := a.cfg.Sessions.Register(r.Context(), req.Username, req.Email, req.Password, roles)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID.String(),
		"username": user.Username,
		"email":    user.Email,
		"roles":    auth.RoleNames(user.Roles),
	})
}

// handleMe returns the principal summary for whichever identity path
// authenticated the current request.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       principal.ID().String(),
		"username": principal.Username(),
		"email":    principal.Email(),
		"roles":    auth.RoleNames(principal.Roles()),
		"admin":    principal.IsAdmin(),
		"manager":  principal.IsManager(),
	})
}
