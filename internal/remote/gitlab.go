package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/folio/internal/apperr"
)

const (
	gitLabAPI = "https://gitlab.com/api/v4"

	// DefaultMaxPages caps tree pagination against a misbehaving server.
	DefaultMaxPages = 50
	gitLabPerPage   = 100
)

// GitLab is the lenient provider: updates need no version marker and a
// vanished file surfaces as apperr.ErrNotFound.
type GitLab struct {
	c        *client
	project  string
	branch   string
	maxPages int
}

// NewGitLab returns a provider for the project owner/repo at branch.
func NewGitLab(owner, repo, branch string, maxPages int, o ClientOptions) *GitLab {
	token := o.Token
	c := newClient("GitLab", gitLabAPI, o, func(r *http.Request) {
		if token != "" {
			r.Header.Set("PRIVATE-TOKEN", token)
		}
		r.Header.Set("Accept", "application/json")
	})
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &GitLab{c: c, project: owner + "/" + repo, branch: branch, maxPages: maxPages}
}

func (g *GitLab) Name() string { return "gitlab" }

func (g *GitLab) Capabilities() Capabilities { return Capabilities{} }

func (g *GitLab) projectPath() string {
	return "/projects/" + url.PathEscape(g.project)
}

func (g *GitLab) filePath(p string) string {
	return g.projectPath() + "/repository/files/" + url.PathEscape(strings.Trim(p, "/"))
}

// ListFiles follows X-Next-Page until exhausted or maxPages is reached; the
// latter marks the listing truncated.
func (g *GitLab) ListFiles(ctx context.Context) (Listing, error) {
	var out Listing
	page := "1"
	for n := 0; page != ""; n++ {
		if n == g.maxPages {
			out.Truncated = true
			break
		}
		var items []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		}
		q := url.Values{
			"recursive": {"true"},
			"ref":       {g.branch},
			"per_page":  {strconv.Itoa(gitLabPerPage)},
			"page":      {page},
		}
		hdr, err := g.c.do(ctx, http.MethodGet, g.projectPath()+"/repository/tree", q, nil, &items)
		if err != nil {
			return Listing{}, fmt.Errorf("gitlab: list files: %w", mapStatus(err))
		}
		for _, it := range items {
			switch it.Type {
			case "blob":
				out.Paths = append(out.Paths, it.Path)
			case "tree":
				out.Paths = append(out.Paths, it.Path+"/")
			}
		}
		page = strings.TrimSpace(hdr.Get("X-Next-Page"))
	}
	return out, nil
}

// ReadFile fetches a file through the repository files API. The marker is
// the last commit id touching the file.
func (g *GitLab) ReadFile(ctx context.Context, p string) (File, error) {
	var res struct {
		Content      string `json:"content"`
		Encoding     string `json:"encoding"`
		LastCommitID string `json:"last_commit_id"`
	}
	if _, err := g.c.do(ctx, http.MethodGet, g.filePath(p), url.Values{"ref": {g.branch}}, nil, &res); err != nil {
		return File{}, fmt.Errorf("gitlab: read %s: %w", p, g.mapError(err))
	}
	content, err := decodeContent(res.Content, res.Encoding)
	if err != nil {
		return File{}, fmt.Errorf("gitlab: read %s: %w", p, err)
	}
	return File{Path: p, Content: content, VersionMarker: res.LastCommitID}, nil
}

type gitLabWrite struct {
	Branch        string `json:"branch"`
	CommitMessage string `json:"commit_message"`
	Content       string `json:"content,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
}

// CreateFile returns an empty marker; the API does not report one.
func (g *GitLab) CreateFile(ctx context.Context, p, content, message string) (string, error) {
	body := gitLabWrite{Branch: g.branch, CommitMessage: message, Content: encodeContent(content), Encoding: "base64"}
	if _, err := g.c.do(ctx, http.MethodPost, g.filePath(p), nil, body, nil); err != nil {
		return "", fmt.Errorf("gitlab: create %s: %w", p, g.mapError(err))
	}
	return "", nil
}

// UpdateFile ignores marker.
func (g *GitLab) UpdateFile(ctx context.Context, p, content, _, message string) (string, error) {
	body := gitLabWrite{Branch: g.branch, CommitMessage: message, Content: encodeContent(content), Encoding: "base64"}
	if _, err := g.c.do(ctx, http.MethodPut, g.filePath(p), nil, body, nil); err != nil {
		return "", fmt.Errorf("gitlab: update %s: %w", p, g.mapError(err))
	}
	return "", nil
}

func (g *GitLab) DeleteFile(ctx context.Context, p, _, message string) error {
	body := gitLabWrite{Branch: g.branch, CommitMessage: message}
	if _, err := g.c.do(ctx, http.MethodDelete, g.filePath(p), nil, body, nil); err != nil {
		return fmt.Errorf("gitlab: delete %s: %w", p, g.mapError(err))
	}
	return nil
}

// mapError also recognizes the 400 GitLab answers for writes to a missing file.
func (g *GitLab) mapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Body), "doesn't exist") {
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	return mapStatus(err)
}
