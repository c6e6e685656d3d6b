package glpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"techrank/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Config holds the connection and authentication settings for GLPI.
type Config struct {
	BaseURL string

	// App-Token of the API client declared in GLPI (optional).
	AppToken string

	// Either a user API token or a login/password pair.
	UserToken string
	Login     string
	Password  string

	// CallTimeout bounds every single HTTP call.
	CallTimeout time.Duration
}

// Client issues authenticated calls against the GLPI REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    *telemetry.Recorder
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// NewClient creates a GLPI client. BaseURL must point at apirest.php.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate opens a new session. Every ranking run owns its session.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	token, err := c.initSession(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("url", c.cfg.BaseURL).Msg("GLPI session opened")
	return &Session{client: c, token: token, generation: 1}, nil
}

func (c *Client) initSession(ctx context.Context) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", fmt.Errorf("%w: no base URL configured", ErrAuth)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/initSession", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	c.setAppToken(req)

	switch {
	case c.cfg.UserToken != "":
		req.Header.Set("Authorization", "user_token "+c.cfg.UserToken)
	case c.cfg.Login != "":
		req.SetBasicAuth(c.cfg.Login, c.cfg.Password)
	default:
		return "", fmt.Errorf("%w: neither user token nor login configured", ErrAuth)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequest("initSession", "error", time.Since(started))
		return "", fmt.Errorf("%w: GLPI unreachable: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequest("initSession", "rejected", time.Since(started))
		return "", fmt.Errorf("%w: initSession returned status %d: %s", ErrAuth, resp.StatusCode, excerpt(resp.Body))
	}

	var body struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.SessionToken == "" {
		c.metrics.UpstreamRequest("initSession", "error", time.Since(started))
		return "", fmt.Errorf("%w: initSession returned no session token", ErrAuth)
	}
	c.metrics.UpstreamRequest("initSession", "ok", time.Since(started))
	return body.SessionToken, nil
}

func (c *Client) killSession(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/killSession", nil)
	if err != nil {
		return err
	}
	c.setAppToken(req)
	req.Header.Set("Session-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("killSession returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) search(ctx context.Context, token string, sr SearchRequest) (*SearchResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	searchURL := fmt.Sprintf("%s/search/%s?%s", c.cfg.BaseURL, url.PathEscape(sr.Resource), encodeSearch(sr).Encode())
	log.Debug().Str("resource", sr.Resource).Str("range", sr.Window.Range()).Msg("GLPI search")

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	c.setAppToken(req)
	req.Header.Set("Session-Token", token)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequest(sr.Resource, "error", time.Since(started))
		return nil, classifyTransportError(ctx, callCtx, sr.Resource, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		// 206 is GLPI's way of saying "more rows exist beyond this range".
	case resp.StatusCode == http.StatusBadRequest:
		body := excerpt(resp.Body)
		if strings.Contains(body, "ERROR_RANGE_EXCEED_TOTAL") {
			c.metrics.UpstreamRequest(sr.Resource, "ok", time.Since(started))
			return &SearchResponse{}, nil
		}
		c.metrics.UpstreamRequest(sr.Resource, "error", time.Since(started))
		return nil, &StatusError{Resource: sr.Resource, Code: resp.StatusCode, Body: body}
	case resp.StatusCode == http.StatusUnauthorized:
		body := excerpt(resp.Body)
		c.metrics.UpstreamRequest(sr.Resource, "rejected", time.Since(started))
		if strings.Contains(body, "ERROR_SESSION_TOKEN") {
			return nil, errSessionExpired
		}
		return nil, fmt.Errorf("%w: search %s returned 401: %s", ErrAuth, sr.Resource, body)
	case resp.StatusCode == http.StatusForbidden:
		c.metrics.UpstreamRequest(sr.Resource, "rejected", time.Since(started))
		return nil, fmt.Errorf("%w: search %s forbidden: %s", ErrAuth, sr.Resource, excerpt(resp.Body))
	default:
		c.metrics.UpstreamRequest(sr.Resource, "error", time.Since(started))
		return nil, &StatusError{Resource: sr.Resource, Code: resp.StatusCode, Body: excerpt(resp.Body)}
	}

	var result SearchResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		c.metrics.UpstreamRequest(sr.Resource, "error", time.Since(started))
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: reading %s response", ErrTimeout, sr.Resource)
		}
		return nil, fmt.Errorf("%w: failed to decode %s response: %v", ErrUpstream, sr.Resource, err)
	}
	c.metrics.UpstreamRequest(sr.Resource, "ok", time.Since(started))
	return &result, nil
}

func (c *Client) setAppToken(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AppToken != "" {
		req.Header.Set("App-Token", c.cfg.AppToken)
	}
}

// classifyTransportError separates per-call timeouts (transient) from the
// caller's own cancellation (not retried).
func classifyTransportError(parent, call context.Context, resource string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("search %s: %w", resource, parent.Err())
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: search %s", ErrTimeout, resource)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: search %s: %v", ErrTimeout, resource, err)
	}
	return fmt.Errorf("%w: search %s: %v", ErrUpstream, resource, err)
}

func encodeSearch(sr SearchRequest) url.Values {
	params := url.Values{}
	for i, c := range sr.Criteria {
		prefix := "criteria[" + strconv.Itoa(i) + "]"
		if i > 0 {
			link := c.Link
			if link == "" {
				link = "AND"
			}
			params.Set(prefix+"[link]", link)
		}
		params.Set(prefix+"[field]", c.Field)
		params.Set(prefix+"[searchtype]", c.SearchType)
		params.Set(prefix+"[value]", c.Value)
	}
	for i, f := range sr.Fields {
		params.Set("forcedisplay["+strconv.Itoa(i)+"]", f)
	}
	if sr.SortField != "" {
		params.Set("sort", sr.SortField)
		params.Set("order", "ASC")
	}
	if sr.Window.Size > 0 {
		params.Set("range", sr.Window.Range())
	}
	return params
}

func excerpt(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
