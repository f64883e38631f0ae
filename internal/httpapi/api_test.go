package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"taskhub.org/internal/auth"
	"taskhub.org/internal/stream"
	"taskhub.org/internal/tasks"
)

func newTestAPI(t *testing.T) (*API, *auth.SessionService) {
	t.Helper()
	codec, err := auth.NewCodec("test-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	users := auth.NewMemoryUserStore()
	sessions, err := auth.NewSessionService(users, auth.NewMemoryTokenStore(24*time.Hour), codec)
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	federated, err := auth.NewFederatedService(users)
	if err != nil {
		t.Fatalf("NewFederatedService: %v", err)
	}
	events := stream.New()
	taskSvc, err := tasks.NewService(tasks.NewMemoryRepository(), events)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(Config{
		Version:          "test",
		Sessions:         sessions,
		Federated:        federated,
		Tasks:            taskSvc,
		Events:           events,
		TrustProxyClaims: true,
	})
	return api, sessions
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t)
	rr := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["status"] != "ok" || body["service"] != "taskhub-api" {
		t.Fatalf("body = %v", body)
	}
}

func TestSigninAndTaskFlow(t *testing.T) {
	api, sessions := newTestAPI(t)
	h := api.Handler()
	seedUser(t, sessions, "alice", "s3cret-pass")

	rr := doJSON(t, h, http.MethodPost, "/api/auth/signin", "",
		map[string]string{"username": "alice", "password": "s3cret-pass"})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body %s", rr.Code, rr.Body.String())
	}
	var signin struct {
		ID           string `json:"id"`
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
		Username     string `json:"username"`
	}
	decodeBody(t, rr, &signin)
	if signin.Token == "" || signin.RefreshToken == "" || signin.Username != "alice" {
		t.Fatalf("signin body = %+v", signin)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/tasks", signin.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list []map[string]any
	decodeBody(t, rr, &list)
	if len(list) != 0 {
		t.Fatalf("fresh account sees %d tasks", len(list))
	}

	rr = doJSON(t, h, http.MethodPost, "/api/tasks", signin.Token,
		map[string]any{"name": "write report", "description": "numbers"})
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
	}
	decodeBody(t, rr, &created)
	if created.OwnerID != signin.ID {
		t.Fatalf("owner = %s, want %s", created.OwnerID, signin.ID)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/tasks/"+created.ID, signin.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodDelete, "/api/tasks/"+created.ID, signin.Token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/tasks/"+created.ID, signin.Token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d", rr.Code)
	}
}

func TestSigninRejected(t *testing.T) {
	api, sessions := newTestAPI(t)
	h := api.Handler()
	seedUser(t, sessions, "alice", "s3cret-pass")

	rr := doJSON(t, h, http.MethodPost, "/api/auth/signin", "",
		map[string]string{"username": "alice", "password": "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/signin", "",
		map[string]string{"username": "nobody", "password": "s3cret-pass"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/auth/signin", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET signin status = %d", rr.Code)
	}
}

func TestTasksRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodGet, "/api/tasks", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate header")
	}

	rr = doJSON(t, h, http.MethodGet, "/api/tasks", "bogus-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token status = %d, want 401", rr.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	api, sessions := newTestAPI(t)
	h := api.Handler()
	seedUser(t, sessions, "alice", "s3cret-pass")

	rr := doJSON(t, h, http.MethodPost, "/api/auth/signin", "",
		map[string]string{"username": "alice", "password": "s3cret-pass"})
	var signin struct {
		RefreshToken string `json:"refreshToken"`
	}
	decodeBody(t, rr, &signin)

	rr = doJSON(t, h, http.MethodPost, "/api/auth/refresh-token", "",
		map[string]string{"refreshToken": signin.RefreshToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rr.Code, rr.Body.String())
	}
	var refreshed struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	decodeBody(t, rr, &refreshed)
	if refreshed.AccessToken == "" || refreshed.RefreshToken == signin.RefreshToken {
		t.Fatalf("refresh body = %+v", refreshed)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/refresh-token", "",
		map[string]string{"refreshToken": ""})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty refresh status = %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/refresh-token", "",
		map[string]string{"refreshToken": "no-such-token"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unknown refresh status = %d", rr.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	api, sessions := newTestAPI(t)
	h := api.Handler()
	seedUser(t, sessions, "alice", "s3cret-pass")

	rr := doJSON(t, h, http.MethodPost, "/api/auth/signin", "",
		map[string]string{"username": "alice", "password": "s3cret-pass"})
	var signin struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	decodeBody(t, rr, &signin)

	rr = doJSON(t, h, http.MethodPost, "/api/auth/logout", signin.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body %s", rr.Code, rr.Body.String())
	}

	// Refresh tokens die with the session; the exchange is refused afterwards.
	rr = doJSON(t, h, http.MethodPost, "/api/auth/refresh-token", "",
		map[string]string{"refreshToken": signin.RefreshToken})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("refresh after logout status = %d", rr.Code)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	payload := map[string]any{
		"username": "dora",
		"email":    "dora@example.com",
		"password": "s3cret-pass",
		"roles":    []string{"MANAGER"},
	}
	rr := doJSON(t, h, http.MethodPost, "/api/auth/register", "", payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Roles []string `json:"roles"`
	}
	decodeBody(t, rr, &created)
	found := false
	for _, r := range created.Roles {
		if r == "MANAGER" {
			found = true
		}
	}
	if !found {
		t.Fatalf("roles = %v, want MANAGER", created.Roles)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/auth/register", "", payload)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d", rr.Code)
	}
}

func TestFederatedClaims(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	claims := map[string]any{
		"sub":                uuid.New().String(),
		"preferred_username": "keycloak-carol",
		"email":              "carol@example.com",
		"realm_access":       map[string]any{"roles": []string{"ADMIN"}},
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("X-Identity-Claims", base64.StdEncoding.EncodeToString(raw))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rr.Code, rr.Body.String())
	}
	var me struct {
		Username string `json:"username"`
		Admin    bool   `json:"admin"`
	}
	decodeBody(t, rr, &me)
	if me.Username != "keycloak-carol" || !me.Admin {
		t.Fatalf("me = %+v", me)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("X-Identity-Claims", "%%% not base64 %%%")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad claims status = %d", rr.Code)
	}
}

func signinToken(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/api/auth/signin", "",
		map[string]string{"username": username, "password": "s3cret-pass"})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin %s status = %d, body %s", username, rr.Code, rr.Body.String())
	}
	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, rr, &body)
	return body.Token
}

func TestEventsStream(t *testing.T) {
	api, sessions := newTestAPI(t)
	h := api.Handler()
	seedUser(t, sessions, "alice", "s3cret-pass")
	seedUser(t, sessions, "bob", "s3cret-pass")

	aliceToken := signinToken(t, h, "alice")
	bobToken := signinToken(t, h, "bob")

	subscribe := func(token string) (*httptest.ResponseRecorder, context.CancelFunc, chan struct{}) {
		ctx, cancel := context.WithCancel(context.Background())
		req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		done := make(chan struct{})
		go func() {
			h.ServeHTTP(rr, req)
			close(done)
		}()
		return rr, cancel, done
	}

	aliceRR, aliceCancel, aliceDone := subscribe(aliceToken)
	bobRR, bobCancel, bobDone := subscribe(bobToken)

	// Let both subscriptions register before publishing.
	time.Sleep(100 * time.Millisecond)

	rr := doJSON(t, h, http.MethodPost, "/api/tasks", aliceToken,
		map[string]any{"name": "write report"})
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}

	time.Sleep(100 * time.Millisecond)
	aliceCancel()
	bobCancel()
	<-aliceDone
	<-bobDone

	// The stream works through the full middleware chain, not just the mux.
	if aliceRR.Code != http.StatusOK {
		t.Fatalf("subscriber status = %d, body %s", aliceRR.Code, aliceRR.Body.String())
	}
	if ct := aliceRR.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(aliceRR.Body.String(), "write report") {
		t.Fatalf("owner did not receive own event: %q", aliceRR.Body.String())
	}

	// A plain user must not see another principal's task events.
	if strings.Contains(bobRR.Body.String(), "data:") {
		t.Fatalf("foreign subscriber received an event: %q", bobRR.Body.String())
	}
}

func seedUser(t *testing.T, sessions *auth.SessionService, username, password string) {
	t.Helper()
	if _, err := sessions.Register(context.Background(), username, username+"@example.com", password, nil); err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
}
