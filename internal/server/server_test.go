package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/dukerupert/habitual/internal/database"
)

type captureSender struct {
	mu   sync.Mutex
	last string
}

func (s *captureSender) SendLoginCode(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = code
	return nil
}

func (s *captureSender) code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func setupServer(t *testing.T) (*httptest.Server, *captureSender) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sender := &captureSender{}
	ts := httptest.NewUnstartedServer(nil)
	srv, err := New(db, Config{
		BaseURL: "http://" + ts.Listener.Addr().String(),
		Secret:  "test-secret",
		Sender:  sender,
	}, slog.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts.Config.Handler = srv.Router()
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, sender
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

var csrfFieldRe = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func csrfToken(t *testing.T, body string) string {
	t.Helper()
	m := csrfFieldRe.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no csrf field in page: %s", body)
	}
	return m[1]
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

// signIn walks the email-code flow and leaves a session cookie in the client's jar.
func signIn(t *testing.T, ts *httptest.Server, client *http.Client, sender *captureSender, addr string) {
	t.Helper()
	resp, err := client.Get(ts.URL + "/login")
	if err != nil {
		t.Fatalf("get login: %v", err)
	}
	token := csrfToken(t, readBody(t, resp))

	resp, err = client.PostForm(ts.URL+"/login", url.Values{"email": {addr}, "csrf_token": {token}})
	if err != nil {
		t.Fatalf("post login: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post login: status %d: %s", resp.StatusCode, body)
	}
	token = csrfToken(t, body)

	resp, err = client.PostForm(ts.URL+"/login/verify", url.Values{
		"email": {addr}, "code": {sender.code()}, "csrf_token": {token},
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	body = readBody(t, resp)
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/" {
		t.Fatalf("verify landed on %s with %d: %s", resp.Request.URL.Path, resp.StatusCode, body)
	}
	if !strings.Contains(body, "APT - Habit Tracker") {
		t.Fatalf("dashboard not rendered: %s", body)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}

func TestStaticAssets(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/static/app.js")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	ts, _ := setupServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("dashboard: status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, err = client.Get(ts.URL + "/api/habits")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("api: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/habits", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad bearer: status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	ts, sender := setupServer(t)
	client := newClient(t)

	resp, err := client.PostForm(ts.URL+"/login", url.Values{"email": {"alice@example.com"}})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if sender.code() != "" {
		t.Error("no code should be sent without a CSRF token")
	}
}

func TestSignInAndUseAPI(t *testing.T) {
	ts, sender := setupServer(t)
	client := newClient(t)
	signIn(t, ts, client, sender, "alice@example.com")

	resp, err := client.Post(ts.URL+"/api/habits", "application/x-www-form-urlencoded", strings.NewReader("name=Read"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("form post to api: status = %d, want 415", resp.StatusCode)
	}

	resp, err = client.Post(ts.URL+"/api/habits", "application/json", strings.NewReader(`{"name":"Read"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status = %d", resp.StatusCode)
	}

	resp, err = client.Post(ts.URL+"/api/token", "application/json", nil)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	var tok struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&tok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || tok.Token == "" {
		t.Fatalf("token: status = %d", resp.StatusCode)
	}

	// The bearer token works without the session cookie.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/habits", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var habits []struct {
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&habits)
	resp.Body.Close()
	if len(habits) != 1 || habits[0].Name != "Read" {
		t.Errorf("habits = %+v", habits)
	}

	// A bearer token cannot mint another token.
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/token", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("token from token: status = %d, want 403", resp.StatusCode)
	}
}

func TestPartialsNeedCSRFHeader(t *testing.T) {
	ts, sender := setupServer(t)
	client := newClient(t)
	signIn(t, ts, client, sender, "alice@example.com")

	resp, err := client.PostForm(ts.URL+"/partials/habits", url.Values{"name": {"Read"}})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status without token = %d, want 403", resp.StatusCode)
	}

	resp, err = client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	token := csrfToken(t, readBody(t, resp))

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/partials/habits", strings.NewReader(url.Values{"name": {"Read"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", token)
	req.Header.Set("HX-Request", "true")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Read") {
		t.Errorf("create partial: status = %d, body = %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("HX-Trigger"); got != "today-stale, heatmap-stale" {
		t.Errorf("HX-Trigger = %q", got)
	}
}

func TestLogout(t *testing.T) {
	ts, sender := setupServer(t)
	client := newClient(t)
	signIn(t, ts, client, sender, "alice@example.com")

	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	token := csrfToken(t, readBody(t, resp))

	resp, err = client.PostForm(ts.URL+"/logout", url.Values{"csrf_token": {token}})
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	readBody(t, resp)
	if resp.Request.URL.Path != "/login" {
		t.Errorf("logout landed on %s", resp.Request.URL.Path)
	}

	resp, err = client.Get(ts.URL + "/api/habits")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", resp.StatusCode)
	}
}
