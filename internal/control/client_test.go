package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientPaths(t *testing.T) {
	var gotPath, gotMethod, gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotBody = nil
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&gotBody)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	ctx := context.Background()

	if _, err := c.Health(ctx); err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if gotPath != "/health" || gotMethod != http.MethodGet {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("bearer token not sent: %q", gotAuth)
	}

	if _, err := c.StartApp(ctx, "com.example.app"); err != nil {
		t.Fatalf("start app failed: %v", err)
	}
	if gotPath != "/apps/com.example.app/start" || gotMethod != http.MethodPost {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}

	if _, err := c.SendInput(ctx, map[string]interface{}{"type": "text", "text": "hi"}); err != nil {
		t.Fatalf("send input failed: %v", err)
	}
	if gotPath != "/device/input" || gotBody["type"] != "text" || gotBody["text"] != "hi" {
		t.Fatalf("unexpected input request path=%s body=%v", gotPath, gotBody)
	}

	if _, err := c.GetJob(ctx, "job-1"); err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if gotPath != "/jobs/job-1" {
		t.Fatalf("unexpected job poll path %s", gotPath)
	}
}

func TestClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Health(context.Background())

	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if uerr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", uerr.StatusCode)
	}
	if uerr.Body != "device exploded" {
		t.Fatalf("unexpected body: %q", uerr.Body)
	}
}

func TestClientNoTokenOmitsHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	if _, err := c.Status(context.Background()); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}
