package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// APIError is a non-2xx provider response.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// ClientOptions are shared by the HTTP providers.
type ClientOptions struct {
	BaseURL string
	Token   string
	// RequestsPerSecond paces outgoing calls; zero or less disables pacing.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// client is the HTTP plumbing shared by providers.
type client struct {
	provider string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	auth     func(*http.Request)
}

func newClient(provider, defaultBase string, o ClientOptions, auth func(*http.Request)) *client {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = defaultBase
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if o.RequestsPerSecond > 0 {
		limit = rate.Limit(o.RequestsPerSecond)
	}
	return &client{
		provider: provider,
		baseURL:  base,
		http:     hc,
		limiter:  rate.NewLimiter(limit, 1),
		auth:     auth,
	}
}

// do sends a request to baseURL+path (path already escaped) and decodes a
// JSON response into out when non-nil.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.Header, &APIError{Provider: c.provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode %s response: %w", c.provider, err)
		}
	}
	return resp.Header, nil
}

// escapeSegments escapes each "/"-separated segment of p.
func escapeSegments(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
