package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"taskhub.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// identityClaimsHeader carries already-verified IdP claims, base64-encoded
	// JSON, set by the authenticating reverse proxy.
	identityClaimsHeader = "X-Identity-Claims"
)

var publicPaths = []string{
	"/api/auth/signin",
	"/api/auth/refresh-token",
	"/api/auth/register",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth resolves the active principal once per request, either from a
// bearer access token or from forwarded federated claims, and threads it
// through the context for all downstream authorization checks.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.TrustProxyClaims {
			if raw := r.Header.Get(identityClaimsHeader); raw != "" {
				a.serveFederated(w, r, next, raw)
				return
			}
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.cfg.Sessions.ResolveAccessToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) serveFederated(w http.ResponseWriter, r *http.Request, next http.Handler, raw string) {
	if a.cfg.Federated == nil {
		writeError(w, http.StatusUnauthorized, "federated identity not configured")
		return
	}
	claims, err := decodeIdentityClaims(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid identity claims")
		return
	}
	principal, err := a.cfg.Federated.ResolvePrincipal(r.Context(), claims)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid identity claims")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication error")
		return
	}
	next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
}

func decodeIdentityClaims(raw string) (auth.IdentityClaims, error) {
	var claims auth.IdentityClaims
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return claims, err
	}
	if err := json.Unmarshal(data, &claims); err != nil {
		return claims, err
	}
	return claims, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
