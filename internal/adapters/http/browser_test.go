//go:build browser

package web_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"

	web "buff/internal/adapters/http"
	"buff/internal/adapters/storage"
	memberStore "buff/internal/adapters/storage/member"
	sessionStore "buff/internal/adapters/storage/session"
	"buff/internal/domain/member"
	"buff/internal/metrics"
)

// testApp is a server on a temp SQLite database plus a Playwright request
// context that keeps cookies like a browser.
type testApp struct {
	BaseURL string
	Request playwright.APIRequestContext
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.MigrateSQLite(db); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	collector := metrics.NewCollector()
	timed := storage.NewTimedDB(db, collector, 0)

	server := web.NewServer(web.Deps{
		Members:  memberStore.NewSQLiteStore(timed),
		Sessions: sessionStore.NewSQLiteStore(timed),
		Hasher:   member.NewHasher(member.MinCost),
		Metrics:  collector,
		Health:   db.PingContext,
	}, web.Options{
		CSRFKey:   []byte(strings.Repeat("k", 32)),
		RateLimit: 100,
		RateBurst: 100,
	})
	srv := httptest.NewServer(server.Handler())

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	req, err := pw.Request.NewContext(playwright.APIRequestNewContextOptions{
		BaseURL:          playwright.String(srv.URL),
		ExtraHttpHeaders: map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		t.Fatalf("failed to create request context: %v", err)
	}

	t.Cleanup(func() {
		req.Dispose()
		pw.Stop()
		srv.Close()
		server.Close()
		db.Close()
	})
	return &testApp{BaseURL: srv.URL, Request: req}
}

func jsonBody(t *testing.T, resp playwright.APIResponse, v any) {
	t.Helper()
	body, err := resp.Body()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

// TestMemberJourney registers, edits the profile, signs out, signs back in
// and checks the protected route guard along the way.
func TestMemberJourney(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	app := newTestApp(t)

	resp, err := app.Request.Post("/api/auth/register", playwright.APIRequestContextPostOptions{
		Data: map[string]string{"email": "ann@example.com", "password": "correct-horse", "fullName": "Ann Lee"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Status() != 201 {
		text, _ := resp.Text()
		t.Fatalf("register status = %d: %s", resp.Status(), text)
	}

	var session struct {
		Authenticated bool `json:"authenticated"`
		Member        struct {
			Email    string `json:"email"`
			FullName string `json:"fullName"`
		} `json:"member"`
	}
	resp, err = app.Request.Get("/api/auth/session")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	jsonBody(t, resp, &session)
	if !session.Authenticated || session.Member.Email != "ann@example.com" {
		t.Fatalf("session after register = %+v", session)
	}

	resp, err = app.Request.Patch("/api/me", playwright.APIRequestContextPatchOptions{
		Data: map[string]string{"fullName": "Ann Q. Lee"},
	})
	if err != nil || resp.Status() != 200 {
		t.Fatalf("patch: status %d, err %v", resp.Status(), err)
	}

	resp, err = app.Request.Post("/api/auth/logout")
	if err != nil || resp.Status() != 204 {
		t.Fatalf("logout: status %d, err %v", resp.Status(), err)
	}

	resp, err = app.Request.Get("/api/me", playwright.APIRequestContextGetOptions{MaxRedirects: playwright.Int(0)})
	if err != nil {
		t.Fatalf("me after logout: %v", err)
	}
	if resp.Status() != 303 || resp.Headers()["location"] != "/login" {
		t.Errorf("me after logout = %d %q, want 303 /login", resp.Status(), resp.Headers()["location"])
	}

	resp, err = app.Request.Post("/api/auth/login", playwright.APIRequestContextPostOptions{
		Data: map[string]string{"email": "ann@example.com", "password": "correct-horse"},
	})
	if err != nil || resp.Status() != 200 {
		t.Fatalf("login: status %d, err %v", resp.Status(), err)
	}
	var me struct {
		FullName string `json:"fullName"`
	}
	resp, err = app.Request.Get("/api/me")
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	jsonBody(t, resp, &me)
	if me.FullName != "Ann Q. Lee" {
		t.Errorf("fullName = %q, want edited name to persist", me.FullName)
	}
}
