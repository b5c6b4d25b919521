package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/parlorlabs/parlor/internal/config"
	"github.com/parlorlabs/parlor/internal/core"
	"github.com/parlorlabs/parlor/internal/store"
)

type echoCompleter struct{}

func (echoCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return "completed: " + prompt[:min(20, len(prompt))], nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	config.Cfg.JWTSecret = "test-secret"

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	handler := NewAPIHandler(
		core.NewSessionService(st, 0),
		core.NewRoomService(st),
		core.NewFeedHub(st),
		core.NewAssistService(echoCompleter{}, 20, 5),
		st,
	)
	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func request(t *testing.T, srv *httptest.Server, method, path, bearer string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func registerAndLogin(t *testing.T, srv *httptest.Server, userID string) string {
	t.Helper()

	status, body := request(t, srv, http.MethodPost, "/api/register", "",
		map[string]string{"user_id": userID, "password": "secret", "name": userID})
	if status != http.StatusCreated {
		t.Fatalf("register returned %d: %s", status, body)
	}

	status, body = request(t, srv, http.MethodPost, "/api/login", "",
		map[string]string{"user_id": userID, "password": "secret"})
	if status != http.StatusOK {
		t.Fatalf("login returned %d: %s", status, body)
	}

	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.Token
}

func TestLoginEndpoint(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "alice")

	tests := []struct {
		name       string
		userID     string
		password   string
		wantStatus int
	}{
		{name: "valid credentials", userID: "alice", password: "secret", wantStatus: http.StatusOK},
		{name: "wrong password", userID: "alice", password: "nope", wantStatus: http.StatusUnauthorized},
		{name: "unknown user", userID: "ghost", password: "secret", wantStatus: http.StatusUnauthorized},
		{name: "missing fields", userID: "", password: "", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := request(t, srv, http.MethodPost, "/api/login", "",
				map[string]string{"user_id": tt.userID, "password": tt.password})
			if status != tt.wantStatus {
				t.Errorf("login = %d (%s), want %d", status, body, tt.wantStatus)
			}
		})
	}
}

func TestSecondLoginInvalidatesFirstBearer(t *testing.T) {
	srv := newTestServer(t)
	first := registerAndLogin(t, srv, "alice")

	// the first device's bearer works
	if status, body := request(t, srv, http.MethodPost, "/api/rooms", first,
		map[string]string{"room_id": "general", "password": "password123"}); status != http.StatusCreated {
		t.Fatalf("create room = %d (%s), want 201", status, body)
	}

	// a login elsewhere regenerates the stored token
	status, body := request(t, srv, http.MethodPost, "/api/login", "",
		map[string]string{"user_id": "alice", "password": "secret"})
	if status != http.StatusOK {
		t.Fatalf("second login = %d (%s)", status, body)
	}

	// now the first bearer's embedded token no longer matches
	if status, _ := request(t, srv, http.MethodPost, "/api/rooms/general/validate", first,
		map[string]string{"password": "password123"}); status != http.StatusUnauthorized {
		t.Errorf("stale bearer = %d, want 401", status)
	}
}

func TestLogoutInvalidatesBearer(t *testing.T) {
	srv := newTestServer(t)
	bearer := registerAndLogin(t, srv, "alice")

	if status, _ := request(t, srv, http.MethodPost, "/api/logout", bearer, nil); status != http.StatusNoContent {
		t.Fatalf("logout = %d, want 204", status)
	}
	if status, _ := request(t, srv, http.MethodPatch, "/api/profile", bearer,
		map[string]string{"name": "Eve"}); status != http.StatusUnauthorized {
		t.Errorf("bearer after logout = %d, want 401", status)
	}
}

func TestRoomEndpoints(t *testing.T) {
	srv := newTestServer(t)
	bearer := registerAndLogin(t, srv, "alice")

	status, body := request(t, srv, http.MethodPost, "/api/rooms", bearer,
		map[string]string{"room_id": "general", "password": "password123"})
	if status != http.StatusCreated {
		t.Fatalf("create room = %d (%s), want 201", status, body)
	}

	if status, _ = request(t, srv, http.MethodPost, "/api/rooms", bearer,
		map[string]string{"room_id": "general", "password": "other"}); status != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", status)
	}

	if status, _ = request(t, srv, http.MethodPost, "/api/rooms", bearer,
		map[string]string{"room_id": "", "password": ""}); status != http.StatusBadRequest {
		t.Errorf("empty create = %d, want 400", status)
	}

	tests := []struct {
		name       string
		roomID     string
		password   string
		wantStatus int
	}{
		{name: "matching credentials", roomID: "general", password: "password123", wantStatus: http.StatusNoContent},
		{name: "wrong password", roomID: "general", password: "wrong", wantStatus: http.StatusForbidden},
		{name: "unknown room", roomID: "missing", password: "x", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := request(t, srv, http.MethodPost, "/api/rooms/"+tt.roomID+"/validate", bearer,
				map[string]string{"password": tt.password})
			if status != tt.wantStatus {
				t.Errorf("validate = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

func TestMessageEndpoints(t *testing.T) {
	srv := newTestServer(t)
	bearer := registerAndLogin(t, srv, "alice")

	if status, _ := request(t, srv, http.MethodPost, "/api/rooms", bearer,
		map[string]string{"room_id": "general", "password": "pw"}); status != http.StatusCreated {
		t.Fatal("failed to create room")
	}

	for _, body := range []string{"first", "second"} {
		status, respBody := request(t, srv, http.MethodPost, "/api/rooms/general/messages?password=pw", bearer,
			map[string]string{"body": body})
		if status != http.StatusAccepted {
			t.Fatalf("post message = %d (%s), want 202", status, respBody)
		}
	}

	if status, _ := request(t, srv, http.MethodPost, "/api/rooms/general/messages?password=pw", bearer,
		map[string]string{"body": "  "}); status != http.StatusBadRequest {
		t.Errorf("empty message = %d, want 400", status)
	}

	if status, _ := request(t, srv, http.MethodGet, "/api/rooms/general/messages?password=bad", bearer, nil); status != http.StatusForbidden {
		t.Errorf("list with wrong password = %d, want 403", status)
	}

	status, body := request(t, srv, http.MethodGet, "/api/rooms/general/messages?password=pw", bearer, nil)
	if status != http.StatusOK {
		t.Fatalf("list messages = %d (%s)", status, body)
	}

	var messages []store.Message
	if err := json.Unmarshal(body, &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Body != "first" || messages[1].Body != "second" {
		t.Errorf("order = [%q, %q], want [first, second]", messages[0].Body, messages[1].Body)
	}
	if messages[0].Author.Name != "alice" || messages[0].Author.UserID != "alice" {
		t.Errorf("author = %+v, want identified alice", messages[0].Author)
	}
}

func TestAssistEndpoints(t *testing.T) {
	srv := newTestServer(t)
	bearer := registerAndLogin(t, srv, "alice")

	history := []map[string]any{
		{"author": map[string]string{"name": "alice"}, "body": "hello"},
	}

	status, body := request(t, srv, http.MethodPost, "/api/assist/summarize", bearer,
		map[string]any{"history": history})
	if status != http.StatusOK {
		t.Fatalf("summarize = %d (%s)", status, body)
	}
	var resp map[string]string
	if err := json.Unmarshal(body, &resp); err != nil || resp["text"] == "" {
		t.Errorf("summarize response = %s (err %v), want non-empty text", body, err)
	}

	// empty history is refused, not forwarded
	if status, _ := request(t, srv, http.MethodPost, "/api/assist/summarize", bearer,
		map[string]any{"history": []any{}}); status != http.StatusBadRequest {
		t.Errorf("summarize empty = %d, want 400", status)
	}

	if status, _ := request(t, srv, http.MethodPost, "/api/assist/fix-grammar", bearer,
		map[string]string{"draft": "how r u"}); status != http.StatusOK {
		t.Errorf("fix-grammar = %d, want 200", status)
	}

	if status, _ := request(t, srv, http.MethodPost, "/api/assist/suggest-reply", bearer,
		map[string]any{"history": history, "draft": "I"}); status != http.StatusOK {
		t.Errorf("suggest-reply = %d, want 200", status)
	}

	// the assist surface sits behind the session check like everything else
	if status, _ := request(t, srv, http.MethodPost, "/api/assist/fix-grammar", "",
		map[string]string{"draft": "x"}); status != http.StatusUnauthorized {
		t.Errorf("assist without bearer = %d, want 401", status)
	}
}

func TestProfileEndpoint(t *testing.T) {
	srv := newTestServer(t)
	bearer := registerAndLogin(t, srv, "alice")

	status, body := request(t, srv, http.MethodPatch, "/api/profile", bearer,
		map[string]string{"name": "Alice B"})
	if status != http.StatusOK {
		t.Fatalf("update profile = %d (%s)", status, body)
	}
	var user store.User
	if err := json.Unmarshal(body, &user); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if user.Name != "Alice B" {
		t.Errorf("name = %q, want Alice B", user.Name)
	}

	if status, _ = request(t, srv, http.MethodPatch, "/api/profile", bearer,
		map[string]string{"name": "   "}); status != http.StatusBadRequest {
		t.Errorf("blank name = %d, want 400", status)
	}

	oversized := fmt.Sprintf("data:image/png;base64,%s", bytes.Repeat([]byte("A"), 1024*1024))
	if status, _ = request(t, srv, http.MethodPatch, "/api/profile", bearer,
		map[string]string{"picture": oversized}); status != http.StatusBadRequest {
		t.Errorf("oversized picture = %d, want 400", status)
	}
}
