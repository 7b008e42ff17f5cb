package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/folio/internal/apperr"
)

const gitHubAPI = "https://api.github.com"

// GitHub is the strict provider: blob shas are required for updates and
// deletes, and updating a vanished file fails with ErrMustRecreate.
type GitHub struct {
	c                   *client
	owner, repo, branch string
}

// NewGitHub returns a provider for owner/repo at branch.
func NewGitHub(owner, repo, branch string, o ClientOptions) *GitHub {
	token := o.Token
	c := newClient("GitHub", gitHubAPI, o, func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		r.Header.Set("Accept", "application/vnd.github+json")
		r.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	})
	return &GitHub{c: c, owner: owner, repo: repo, branch: branch}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) Capabilities() Capabilities {
	return Capabilities{RequiresVersionMarker: true}
}

func (g *GitHub) repoPath() string {
	return "/repos/" + url.PathEscape(g.owner) + "/" + url.PathEscape(g.repo)
}

// ListFiles reads the recursive git tree of the branch.
func (g *GitHub) ListFiles(ctx context.Context) (Listing, error) {
	var res struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	path := g.repoPath() + "/git/trees/" + url.PathEscape(g.branch)
	if _, err := g.c.do(ctx, http.MethodGet, path, url.Values{"recursive": {"1"}}, nil, &res); err != nil {
		return Listing{}, fmt.Errorf("github: list files: %w", mapStatus(err))
	}
	out := Listing{Paths: make([]string, 0, len(res.Tree)), Truncated: res.Truncated}
	for _, e := range res.Tree {
		switch e.Type {
		case "blob":
			out.Paths = append(out.Paths, e.Path)
		case "tree":
			out.Paths = append(out.Paths, e.Path+"/")
		}
	}
	return out, nil
}

type gitHubContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

// ReadFile fetches a file through the contents API.
func (g *GitHub) ReadFile(ctx context.Context, p string) (File, error) {
	var res gitHubContent
	path := g.repoPath() + "/contents/" + escapeSegments(p)
	if _, err := g.c.do(ctx, http.MethodGet, path, url.Values{"ref": {g.branch}}, nil, &res); err != nil {
		return File{}, fmt.Errorf("github: read %s: %w", p, mapStatus(err))
	}
	content, err := decodeContent(res.Content, res.Encoding)
	if err != nil {
		return File{}, fmt.Errorf("github: read %s: %w", p, err)
	}
	return File{Path: p, Content: content, VersionMarker: res.SHA}, nil
}

type gitHubWrite struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type gitHubWriteResult struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (g *GitHub) CreateFile(ctx context.Context, p, content, message string) (string, error) {
	var res gitHubWriteResult
	body := gitHubWrite{Message: message, Content: encodeContent(content), Branch: g.branch}
	if _, err := g.c.do(ctx, http.MethodPut, g.repoPath()+"/contents/"+escapeSegments(p), nil, body, &res); err != nil {
		return "", fmt.Errorf("github: create %s: %w", p, mapStatus(err))
	}
	return res.Content.SHA, nil
}

func (g *GitHub) UpdateFile(ctx context.Context, p, content, marker, message string) (string, error) {
	if marker == "" {
		return "", fmt.Errorf("github: update %s: missing blob sha", p)
	}
	var res gitHubWriteResult
	body := gitHubWrite{Message: message, Content: encodeContent(content), SHA: marker, Branch: g.branch}
	if _, err := g.c.do(ctx, http.MethodPut, g.repoPath()+"/contents/"+escapeSegments(p), nil, body, &res); err != nil {
		err = mapStatus(err)
		if errors.Is(err, apperr.ErrNotFound) {
			return "", fmt.Errorf("github: update %s: %w", p, ErrMustRecreate)
		}
		return "", fmt.Errorf("github: update %s: %w", p, err)
	}
	return res.Content.SHA, nil
}

func (g *GitHub) DeleteFile(ctx context.Context, p, marker, message string) error {
	if marker == "" {
		return fmt.Errorf("github: delete %s: missing blob sha", p)
	}
	body := gitHubWrite{Message: message, SHA: marker, Branch: g.branch}
	if _, err := g.c.do(ctx, http.MethodDelete, g.repoPath()+"/contents/"+escapeSegments(p), nil, body, nil); err != nil {
		return fmt.Errorf("github: delete %s: %w", p, mapStatus(err))
	}
	return nil
}

// mapStatus wraps well-known statuses with the matching sentinel.
func mapStatus(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %w", apperr.ErrConflict, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", apperr.ErrPermissionDenied, err)
	}
	return err
}

func encodeContent(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodeContent(s, encoding string) (string, error) {
	if encoding != "" && encoding != "base64" {
		return s, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\n", "", "\r", "").Replace(s))
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return string(data), nil
}
