package gitpr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseRemote(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url   string
		owner string
		repo  string
		ok    bool
	}{
		{"git@github.com:acme/agent.git", "acme", "agent", true},
		{"https://github.com/acme/agent.git", "acme", "agent", true},
		{"https://github.com/acme/agent", "acme", "agent", true},
		{"https://gitlab.example.com/team/proj.git", "team", "proj", true},
		{"not a url", "", "", false},
	}
	for _, tc := range cases {
		owner, repo, err := ParseRemote(tc.url)
		if tc.ok != (err == nil) {
			t.Errorf("ParseRemote(%q) err = %v", tc.url, err)
			continue
		}
		if owner != tc.owner || repo != tc.repo {
			t.Errorf("ParseRemote(%q) = %q/%q, want %q/%q", tc.url, owner, repo, tc.owner, tc.repo)
		}
	}
}

func TestOpenPullRequest(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/agent/pulls" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["base"] != "main" || !strings.HasPrefix(body["head"], "agent-evo/optimize") {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"html_url": "https://github.com/acme/agent/pull/7"})
	}))
	defer srv.Close()

	c := NewClient(t.TempDir(), "origin", "main", "agent-evo/optimize")
	c.Token = "tok"
	c.APIBase = srv.URL
	c.HTTPClient = srv.Client()

	url, err := c.openPullRequest(context.Background(), "acme", "agent", "title", "body", "agent-evo/optimize-x")
	if err != nil {
		t.Fatalf("openPullRequest: %v", err)
	}
	if url != "https://github.com/acme/agent/pull/7" {
		t.Errorf("url = %q", url)
	}
}

func TestOpenPullRequestAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "Validation Failed"})
	}))
	defer srv.Close()

	c := NewClient(t.TempDir(), "", "", "")
	c.Token = "tok"
	c.APIBase = srv.URL
	c.HTTPClient = srv.Client()

	_, err := c.openPullRequest(context.Background(), "acme", "agent", "t", "b", "branch")
	if err == nil || !strings.Contains(err.Error(), "Validation Failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenPullRequestNoToken(t *testing.T) {
	c := NewClient(t.TempDir(), "", "", "")
	t.Setenv("GITHUB_TOKEN", "")
	if _, err := c.openPullRequest(context.Background(), "a", "b", "t", "b", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreatePRRequiresChanges(t *testing.T) {
	t.Parallel()
	c := NewClient(t.TempDir(), "", "", "")
	if _, err := c.CreatePR(context.Background(), "t", "b", nil); err == nil {
		t.Fatal("expected error")
	}
}
