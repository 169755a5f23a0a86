// Package httpjson is a real HTTP+JSON remote.Service implementation:
// exponential backoff with jitter on idempotent reads, a single
// post-refresh retry on writes. Find pages with skip/limit query
// parameters and decodes a JSON {total, limit, skip, data} envelope;
// Link headers are not read. Every record is decoded straight into
// record.Record, so the wire format is whatever JSON object the remote
// returns.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/internal/version"
	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote"
)

// Default tuning values for retry and backoff behavior.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxJitter  = 100 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
)

// Credentials are the bearer credentials attached to every request.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// CredentialStore persists Credentials across process restarts, keyed by
// an origin the caller chooses (typically the remote base URL).
// keyringstore.Store has the same Load/Save methods but over its own
// keyringstore.Credentials type, so it does not satisfy this interface.
type CredentialStore interface {
	Load(origin string) (Credentials, error)
	Save(origin string, creds Credentials) error
}

// Refresher exchanges a refresh token for a new access token. Optional:
// a nil Refresher means a 401 is never retried.
type Refresher interface {
	Refresh(ctx context.Context, creds Credentials) (Credentials, error)
}

// Config configures a Client at construction time.
type Config struct {
	BaseURL string // e.g. "https://api.example.com/v1"
	Path    string // resource path appended to BaseURL, e.g. "/items"
	Origin  string // credential-store key; defaults to BaseURL

	Store     CredentialStore
	Refresher Refresher

	Transport  http.RoundTripper
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	UserAgent  string

	Logger *slog.Logger
}

// retryableError wraps an error with a server-specified retry delay.
type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

// Client is a remote.Service backed by an HTTP+JSON API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	log        *slog.Logger
	creds      Credentials
}

// New constructs a Client, loading credentials from cfg.Store if set.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxJitter <= 0 {
		cfg.MaxJitter = DefaultMaxJitter
	}
	if cfg.Origin == "" {
		cfg.Origin = cfg.BaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = 100
		t.MaxIdleConnsPerHost = 10
		t.IdleConnTimeout = 90 * time.Second
		transport = t
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		cfg:        cfg,
		log:        cfg.Logger,
	}

	if cfg.Store != nil {
		creds, err := cfg.Store.Load(cfg.Origin)
		if err == nil {
			c.creds = creds
		}
	}
	return c, nil
}

func (c *Client) url(suffix string) string {
	base := strings.TrimSuffix(c.cfg.BaseURL, "/") + c.cfg.Path
	if suffix == "" {
		return base
	}
	return base + "/" + strings.TrimPrefix(suffix, "/")
}

// Find implements remote.Service. q.Match is sent as a JSON-encoded
// "query" parameter; the response is decoded as a query.Page envelope.
func (c *Client) Find(ctx context.Context, q remote.Query) (remote.FindResult, error) {
	u := c.url("")
	params := make([]string, 0, 3)
	if len(q.Match) > 0 {
		encoded, err := json.Marshal(q.Match)
		if err != nil {
			return remote.FindResult{}, edgeerr.BadRequest("httpjson: cannot encode query: " + err.Error())
		}
		params = append(params, "query="+string(encoded))
	}
	if q.Skip > 0 {
		params = append(params, fmt.Sprintf("skip=%d", q.Skip))
	}
	if q.Limit > 0 {
		params = append(params, fmt.Sprintf("limit=%d", q.Limit))
	}
	if len(params) > 0 {
		u += "?" + strings.Join(params, "&")
	}

	body, _, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return remote.FindResult{}, err
	}
	var page query.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return remote.FindResult{}, edgeerr.Remote(fmt.Errorf("httpjson: decode find response: %w", err))
	}
	return remote.FindResult{Total: page.Total, Limit: page.Limit, Skip: page.Skip, Data: page.Data}, nil
}

// Get implements remote.Service.
func (c *Client) Get(ctx context.Context, id any) (record.Record, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.url(fmt.Sprint(id)), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Create implements remote.Service.
func (c *Client) Create(ctx context.Context, data record.Record) (record.Record, error) {
	body, _, err := c.do(ctx, http.MethodPost, c.url(""), data)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Update implements remote.Service.
func (c *Client) Update(ctx context.Context, id any, data record.Record) (record.Record, error) {
	body, _, err := c.do(ctx, http.MethodPut, c.url(fmt.Sprint(id)), data)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Patch implements remote.Service.
func (c *Client) Patch(ctx context.Context, id any, data record.Record) (record.Record, error) {
	body, _, err := c.do(ctx, http.MethodPatch, c.url(fmt.Sprint(id)), data)
	if err != nil {
		return nil, err
	}
	return decodeRecord(body)
}

// Remove implements remote.Service.
func (c *Client) Remove(ctx context.Context, id any) (record.Record, error) {
	body, status, err := c.do(ctx, http.MethodDelete, c.url(fmt.Sprint(id)), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return record.Record{"id": id}, nil
	}
	return decodeRecord(body)
}

func decodeRecord(body []byte) (record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, edgeerr.Remote(fmt.Errorf("httpjson: decode record: %w", err))
	}
	return rec, nil
}

// do issues one logical request, retrying idempotent GETs with backoff
// and retrying a write exactly once after a successful token refresh.
func (c *Client) do(ctx context.Context, method, url string, body any) ([]byte, int, error) {
	if method != http.MethodGet {
		respBody, status, err := c.attempt(ctx, method, url, body, 1)
		if err == nil {
			return respBody, status, nil
		}
		if _, needsRefresh := err.(*refreshRequired); needsRefresh {
			c.log.Debug("token refreshed, retrying", "method", method)
			return c.attempt(ctx, method, url, body, 2)
		}
		return nil, 0, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		respBody, status, err := c.attempt(ctx, method, url, body, attempt)
		if err == nil {
			return respBody, status, nil
		}

		var delay time.Duration
		if re, ok := err.(*retryableError); ok {
			lastErr = re.err
			if re.retryAfter > 0 {
				delay = re.retryAfter
			} else {
				delay = c.backoffDelay(attempt)
			}
		} else if ee, ok := err.(*edgeerr.Error); ok && ee.Retryable {
			lastErr = err
			delay = c.backoffDelay(attempt)
		} else {
			return nil, 0, err
		}

		c.log.Debug("retrying", "attempt", attempt, "max", c.cfg.MaxRetries, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, 0, edgeerr.Timeout("context cancelled during retry", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, 0, edgeerr.Remote(fmt.Errorf("request failed after %d retries: %w", c.cfg.MaxRetries, lastErr))
}

// refreshRequired signals do to retry a write once after a 401 refresh.
type refreshRequired struct{}

func (*refreshRequired) Error() string { return "token refreshed" }

func (c *Client) attempt(ctx context.Context, method, url string, body any, attemptNum int) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, edgeerr.BadRequest("httpjson: cannot encode request body: " + err.Error())
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, edgeerr.BadRequest("httpjson: invalid request: " + err.Error())
	}
	if c.creds.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	}
	ua := version.UserAgent()
	if c.cfg.UserAgent != "" {
		ua += " " + c.cfg.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug("http request", "method", method, "url", url, "attempt", attemptNum)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, edgeerr.Remote(err)
	}
	defer resp.Body.Close()
	c.log.Debug("http response", "status", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, edgeerr.Remote(fmt.Errorf("httpjson: read response: %w", err))
		}
		return respBody, resp.StatusCode, nil

	case http.StatusTooManyRequests:
		secs := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, 0, &retryableError{
			err:        edgeerr.Remote(fmt.Errorf("rate limited")),
			retryAfter: time.Duration(secs) * time.Second,
		}

	case http.StatusUnauthorized:
		if attemptNum == 1 && c.cfg.Refresher != nil {
			refreshed, err := c.cfg.Refresher.Refresh(ctx, c.creds)
			if err == nil {
				c.creds = refreshed
				if c.cfg.Store != nil {
					_ = c.cfg.Store.Save(c.cfg.Origin, refreshed)
				}
				return nil, 0, &refreshRequired{}
			}
		}
		return nil, 0, edgeerr.Remote(fmt.Errorf("authentication failed"))

	case http.StatusForbidden:
		return nil, 0, edgeerr.Remote(fmt.Errorf("access denied"))

	case http.StatusNotFound:
		return nil, 0, edgeerr.NotFound("record", url)

	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, 0, edgeerr.BadRequest(decodeErrorMessage(respBody, resp.StatusCode))

	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, 0, &edgeerr.Error{Code: edgeerr.CodeRemote, Message: fmt.Sprintf("gateway error (%d)", resp.StatusCode), Retryable: true}

	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, 0, edgeerr.Remote(fmt.Errorf("%s", decodeErrorMessage(respBody, resp.StatusCode)))
	}
}

func decodeErrorMessage(body []byte, status int) string {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return fmt.Sprintf("request failed (HTTP %d)", status)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.BaseDelay * time.Duration(1<<(attempt-1))
	if c.cfg.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(c.cfg.MaxJitter))) //nolint:gosec // jitter, not security sensitive
	}
	return delay
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return secs
	}
	return 0
}
