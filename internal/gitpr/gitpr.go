// Package gitpr publishes prompt changes as a branch plus a GitHub pull
// request. It shells out to git for repository operations and talks to
// the GitHub REST API for the PR itself.
package gitpr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Change is one file replacement to publish.
type Change struct {
	Path    string
	Content string
}

// Client drives git and the GitHub API for one repository.
type Client struct {
	RepoDir      string
	Remote       string
	BaseBranch   string
	BranchPrefix string

	Token   string // defaults to GITHUB_TOKEN
	APIBase string // defaults to https://api.github.com

	HTTPClient *http.Client
}

func NewClient(repoDir, remote, baseBranch, branchPrefix string) *Client {
	if remote == "" {
		remote = "origin"
	}
	if baseBranch == "" {
		baseBranch = "main"
	}
	if branchPrefix == "" {
		branchPrefix = "agent-evo/optimize"
	}
	return &Client{
		RepoDir:      repoDir,
		Remote:       remote,
		BaseBranch:   baseBranch,
		BranchPrefix: branchPrefix,
	}
}

// CreatePR commits the changes on a fresh branch, pushes it, and opens
// a pull request against the base branch. The working tree is switched
// back to the original branch before returning, success or not.
func (c *Client) CreatePR(ctx context.Context, title, body string, changes []Change) (string, error) {
	if c == nil {
		return "", errors.New("gitpr: nil client")
	}
	if len(changes) == 0 {
		return "", errors.New("gitpr: no changes")
	}

	startBranch, err := c.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitpr: current branch: %w", err)
	}
	branch := fmt.Sprintf("%s-%s", c.BranchPrefix, time.Now().UTC().Format("20060102-150405"))

	if _, err := c.git(ctx, "checkout", "-b", branch); err != nil {
		return "", fmt.Errorf("gitpr: create branch: %w", err)
	}
	// Whatever happens from here, land back on the starting branch.
	defer c.git(context.WithoutCancel(ctx), "checkout", startBranch)

	for _, ch := range changes {
		abs := ch.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(c.RepoDir, ch.Path)
		}
		if err := os.WriteFile(abs, []byte(ch.Content), 0o644); err != nil {
			return "", fmt.Errorf("gitpr: write %q: %w", ch.Path, err)
		}
		if _, err := c.git(ctx, "add", "--", ch.Path); err != nil {
			return "", fmt.Errorf("gitpr: stage %q: %w", ch.Path, err)
		}
	}

	if _, err := c.git(ctx, "commit", "-m", title); err != nil {
		return "", fmt.Errorf("gitpr: commit: %w", err)
	}
	if _, err := c.git(ctx, "push", "-u", c.Remote, branch); err != nil {
		return "", fmt.Errorf("gitpr: push: %w", err)
	}

	remoteURL, err := c.git(ctx, "remote", "get-url", c.Remote)
	if err != nil {
		return "", fmt.Errorf("gitpr: remote url: %w", err)
	}
	owner, repo, err := ParseRemote(remoteURL)
	if err != nil {
		return "", err
	}

	return c.openPullRequest(ctx, owner, repo, title, body, branch)
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.RepoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

var remoteRe = regexp.MustCompile(`(?:^git@[^:]+:|^https?://[^/]+/)([^/]+)/(.+?)(?:\.git)?$`)

// ParseRemote extracts owner and repository name from an SSH or HTTPS
// git remote URL.
func ParseRemote(url string) (owner, repo string, err error) {
	m := remoteRe.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", fmt.Errorf("gitpr: unrecognized remote url %q", url)
	}
	return m[1], m[2], nil
}

func (c *Client) openPullRequest(ctx context.Context, owner, repo, title, body, branch string) (string, error) {
	token := c.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return "", errors.New("gitpr: GITHUB_TOKEN not set")
	}
	apiBase := c.APIBase
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	payload, err := json.Marshal(map[string]string{
		"title": title,
		"body":  body,
		"head":  branch,
		"base":  c.BaseBranch,
	})
	if err != nil {
		return "", fmt.Errorf("gitpr: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls", strings.TrimRight(apiBase, "/"), owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gitpr: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gitpr: create pull request: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		HTMLURL string `json:"html_url"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("gitpr: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		msg := parsed.Message
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("gitpr: create pull request: %s", msg)
	}
	if parsed.HTMLURL == "" {
		return "", errors.New("gitpr: response missing html_url")
	}
	return parsed.HTMLURL, nil
}
