package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/auth"
	"github.com/NeveIsa/LEAP2/internal/config"
	"github.com/NeveIsa/LEAP2/internal/experiment"
	"github.com/NeveIsa/LEAP2/internal/registry"
	"github.com/NeveIsa/LEAP2/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)

	set := registry.NewSet()
	set.Register("square", func(x float64) float64 { return x * x }, registry.WithDoc("squares x"))
	set.Register("ping", func() string { return "pong" }, registry.NoRegCheck())
	registry.RegisterSet("handlers-test-set", set)
}

type testServer struct {
	router   *gin.Engine
	manager  *experiment.Manager
	sessions *auth.SessionStore
	password string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	root := t.TempDir()

	expDir := filepath.Join(root, "experiments", "lab1")
	if err := os.MkdirAll(filepath.Join(expDir, "ui"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	readme := `---
display_name: Lab One
functions: handlers-test-set
---
# Lab One
`
	if err := os.WriteFile(filepath.Join(expDir, "README.md"), []byte(readme), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}
	if err := os.WriteFile(filepath.Join(expDir, "ui", "dashboard.html"), []byte("<html>lab1</html>"), 0o644); err != nil {
		t.Fatalf("write ui: %v", err)
	}

	cfg := &config.Config{Root: root, SessionTTLHours: 1, DefaultExperiment: "lab1"}
	if mutate != nil {
		mutate(cfg)
	}

	creds, err := auth.HashPassword("admin-pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := auth.SaveCredentials(cfg.CredentialsPath(), creds); err != nil {
		t.Fatalf("save credentials: %v", err)
	}

	manager, err := experiment.Discover(cfg.ExperimentsDir(), func(name, path string) (storage.Store, error) {
		return storage.NewMemoryStore(name), nil
	})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	sessions := auth.NewSessionStore(time.Hour)
	return &testServer{
		router:   NewRouter(cfg, manager, sessions),
		manager:  manager,
		sessions: sessions,
		password: "admin-pw",
	}
}

func (s *testServer) do(t *testing.T, method, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, err := s.sessions.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token
}

func (s *testServer) registerStudent(t *testing.T, id string) {
	t.Helper()
	exp, err := s.manager.Get("lab1")
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	if err := exp.Store.AddStudent(context.Background(), &storage.Student{StudentID: id, Name: id}); err != nil {
		t.Fatalf("add student: %v", err)
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func TestCall_Success(t *testing.T) {
	s := newTestServer(t)
	s.registerStudent(t, "alice")

	w := s.do(t, http.MethodPost, "/exp/lab1/call", map[string]any{
		"student_id": "alice", "func_name": "square", "args": []any{7},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var out struct {
		Result float64 `json:"result"`
	}
	decodeBody(t, w, &out)
	if out.Result != 49 {
		t.Errorf("expected 49, got %v", out.Result)
	}
}

func TestCall_RateLimited(t *testing.T) {
	s := newTestServerWith(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{CallPerMinute: 60, CallBurst: 2}
	})
	s.registerStudent(t, "alice")

	payload := map[string]any{"student_id": "alice", "func_name": "square", "args": []any{7}}
	for i := 0; i < 2; i++ {
		if w := s.do(t, http.MethodPost, "/exp/lab1/call", payload, nil); w.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	w := s.do(t, http.MethodPost, "/exp/lab1/call", payload, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	var out struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, w, &out)
	if out.Detail != "Rate limit exceeded" {
		t.Errorf("unexpected detail: %q", out.Detail)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServerWith(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{LoginPerMinute: 60, LoginBurst: 3}
	})

	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/login", map[string]string{"password": "wrong"}, nil)
	}

	// The correct password is rejected too once the budget is spent.
	w := s.do(t, http.MethodPost, "/login", map[string]string{"password": s.password}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestCall_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.registerStudent(t, "alice")

	cases := []struct {
		name    string
		payload map[string]any
		status  int
	}{
		{"missing func_name", map[string]any{"student_id": "alice"}, http.StatusBadRequest},
		{"bad student id", map[string]any{"student_id": "a b", "func_name": "square"}, http.StatusBadRequest},
		{"unknown function", map[string]any{"student_id": "alice", "func_name": "nope"}, http.StatusNotFound},
		{"unregistered student", map[string]any{"student_id": "zz", "func_name": "square", "args": []any{2}}, http.StatusForbidden},
	}
	for _, tc := range cases {
		w := s.do(t, http.MethodPost, "/exp/lab1/call", tc.payload, nil)
		if w.Code != tc.status {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.status, w.Code, w.Body.String())
		}
		var out struct {
			Detail string `json:"detail"`
		}
		decodeBody(t, w, &out)
		if out.Detail == "" {
			t.Errorf("%s: expected detail message", tc.name)
		}
	}
}

func TestCall_UnknownExperiment(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/exp/ghost/call", map[string]any{
		"student_id": "alice", "func_name": "square",
	}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestFunctions_Discovery(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/exp/lab1/functions", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out map[string]struct {
		Signature  string `json:"signature"`
		Doc        string `json:"doc"`
		NoRegCheck bool   `json:"noregcheck"`
	}
	decodeBody(t, w, &out)
	if len(out) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(out))
	}
	if out["square"].Signature != "(float64) float64" || out["square"].Doc != "squares x" {
		t.Errorf("unexpected square info: %+v", out["square"])
	}
	if !out["ping"].NoRegCheck {
		t.Error("expected ping to be noregcheck")
	}
}

func TestLogsFlow(t *testing.T) {
	s := newTestServer(t)
	s.registerStudent(t, "alice")

	for i := 0; i < 5; i++ {
		w := s.do(t, http.MethodPost, "/exp/lab1/call", map[string]any{
			"student_id": "alice", "func_name": "square", "args": []any{i}, "trial": "t1",
		}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("call %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	w := s.do(t, http.MethodGet, "/exp/lab1/logs?student_id=alice&n=3&order=earliest", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Logs []struct {
			ID       int64  `json:"id"`
			FuncName string `json:"func_name"`
			Trial    string `json:"trial"`
		} `json:"logs"`
	}
	decodeBody(t, w, &out)
	if len(out.Logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(out.Logs))
	}
	if out.Logs[0].ID != 1 || out.Logs[2].ID != 3 {
		t.Errorf("unexpected ids: %+v", out.Logs)
	}

	// Cursor page.
	w = s.do(t, http.MethodGet, "/exp/lab1/logs?order=earliest&after_id=3", nil, nil)
	decodeBody(t, w, &out)
	if len(out.Logs) != 2 || out.Logs[0].ID != 4 {
		t.Errorf("unexpected cursor page: %+v", out.Logs)
	}

	// Unknown function filter is a caller error.
	w = s.do(t, http.MethodGet, "/exp/lab1/logs?func_name=nope", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown func filter, got %d", w.Code)
	}

	// Log options reflect the writes.
	w = s.do(t, http.MethodGet, "/exp/lab1/log-options", nil, nil)
	var opts struct {
		Students []string `json:"students"`
		Trials   []string `json:"trials"`
		LogCount int64    `json:"log_count"`
	}
	decodeBody(t, w, &opts)
	if opts.LogCount != 5 || len(opts.Students) != 1 || len(opts.Trials) != 1 {
		t.Errorf("unexpected options: %+v", opts)
	}
}

func TestLogs_BadQueryParams(t *testing.T) {
	s := newTestServer(t)

	for _, q := range []string{"n=abc", "after_id=x", "order=sideways", "start_time=yesterday"} {
		w := s.do(t, http.MethodGet, "/exp/lab1/logs?"+q, nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestIsRegistered(t *testing.T) {
	s := newTestServer(t)
	s.registerStudent(t, "alice")

	var out struct {
		Registered bool `json:"registered"`
	}
	w := s.do(t, http.MethodGet, "/exp/lab1/is-registered?student_id=alice", nil, nil)
	decodeBody(t, w, &out)
	if !out.Registered {
		t.Error("expected alice registered")
	}

	w = s.do(t, http.MethodGet, "/exp/lab1/is-registered?student_id=bob", nil, nil)
	decodeBody(t, w, &out)
	if out.Registered {
		t.Error("expected bob unregistered")
	}
}

func TestAdmin_RequiresSession(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/exp/lab1/admin/add-student", map[string]any{
		"student_id": "alice", "name": "Alice",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAdmin_StudentLifecycle(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{"Authorization": "Bearer " + s.adminToken(t)}

	w := s.do(t, http.MethodPost, "/exp/lab1/admin/add-student", map[string]any{
		"student_id": "alice", "name": "Alice", "email": "alice@example.com",
	}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Duplicate registration conflicts.
	w = s.do(t, http.MethodPost, "/exp/lab1/admin/add-student", map[string]any{
		"student_id": "alice", "name": "Alice",
	}, headers)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/exp/lab1/admin/students", nil, headers)
	var list struct {
		Students []struct {
			StudentID string `json:"student_id"`
		} `json:"students"`
	}
	decodeBody(t, w, &list)
	if len(list.Students) != 1 || list.Students[0].StudentID != "alice" {
		t.Errorf("unexpected students: %+v", list.Students)
	}

	w = s.do(t, http.MethodPost, "/exp/lab1/admin/delete-student", map[string]any{
		"student_id": "alice",
	}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Deleting again is not found.
	w = s.do(t, http.MethodPost, "/exp/lab1/admin/delete-student", map[string]any{
		"student_id": "alice",
	}, headers)
	if w.Code != http.StatusNotFound {
		t.Errorf("re-delete: expected 404, got %d", w.Code)
	}
}

func TestAdmin_DeleteStudentCascadesLogs(t *testing.T) {
	s := newTestServer(t)
	s.registerStudent(t, "alice")
	headers := map[string]string{"Authorization": "Bearer " + s.adminToken(t)}

	w := s.do(t, http.MethodPost, "/exp/lab1/call", map[string]any{
		"student_id": "alice", "func_name": "square", "args": []any{3},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("call: %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/exp/lab1/admin/delete-student", map[string]any{
		"student_id": "alice",
	}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/exp/lab1/logs", nil, nil)
	var out struct {
		Logs []any `json:"logs"`
	}
	decodeBody(t, w, &out)
	if len(out.Logs) != 0 {
		t.Errorf("expected logs purged, got %d", len(out.Logs))
	}
}

func TestAdmin_ReloadFunctions(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{"Authorization": "Bearer " + s.adminToken(t)}

	w := s.do(t, http.MethodPost, "/exp/lab1/admin/reload-functions", nil, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		FunctionsLoaded int `json:"functions_loaded"`
	}
	decodeBody(t, w, &out)
	if out.FunctionsLoaded != 2 {
		t.Errorf("expected 2 functions, got %d", out.FunctionsLoaded)
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/login", map[string]any{"password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/login", map[string]any{"password": s.password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, w, &login)
	if login.Token == "" {
		t.Fatal("expected session token")
	}

	headers := map[string]string{"Authorization": "Bearer " + login.Token}
	w = s.do(t, http.MethodGet, "/api/auth-status", nil, headers)
	var status struct {
		Authenticated bool `json:"authenticated"`
	}
	decodeBody(t, w, &status)
	if !status.Authenticated {
		t.Error("expected authenticated after login")
	}

	w = s.do(t, http.MethodPost, "/logout", nil, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/auth-status", nil, headers)
	decodeBody(t, w, &status)
	if status.Authenticated {
		t.Error("expected unauthenticated after logout")
	}
}

func TestExperimentListAndHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/experiments", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Experiments []struct {
			Name          string `json:"name"`
			DisplayName   string `json:"display_name"`
			FunctionCount int    `json:"function_count"`
		} `json:"experiments"`
	}
	decodeBody(t, w, &out)
	if len(out.Experiments) != 1 || out.Experiments[0].Name != "lab1" {
		t.Fatalf("unexpected experiments: %+v", out.Experiments)
	}
	if out.Experiments[0].FunctionCount != 2 {
		t.Errorf("expected 2 functions, got %d", out.Experiments[0].FunctionCount)
	}

	w = s.do(t, http.MethodGet, "/api/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}
}

func TestReadme(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/exp/lab1/readme", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Frontmatter struct {
			DisplayName string `json:"display_name"`
		} `json:"frontmatter"`
		Body string `json:"body"`
	}
	decodeBody(t, w, &out)
	if out.Frontmatter.DisplayName != "Lab One" {
		t.Errorf("unexpected frontmatter: %+v", out.Frontmatter)
	}
	if out.Body == "" {
		t.Error("expected body")
	}
}

func TestUI_ServesEntryPointAndRedirects(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/exp/lab1/ui/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("lab1")) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/exp/lab1/ui/" {
		t.Errorf("unexpected redirect target: %q", loc)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/health", nil, nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	w = s.do(t, http.MethodGet, "/api/health", nil, map[string]string{"X-Request-ID": "fixed-id"})
	if got := w.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("expected client id echoed, got %q", got)
	}
}
