// Package shield is the content-safety probe client: a single HTTP call
// per invocation, bearer-token cached, fail-closed on any transport error.
package shield

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/wardenai/warden/internal/net/ssrf"
)

// Result is the outcome of one shield probe.
type Result struct {
	AttackDetected bool
	Detail         string
	ElapsedMs      float64
}

// TokenSource supplies a fresh bearer token and its expiry, mirroring the
// auth-SDK client the spec assumes does retry/refresh transparently.
// Token acquisition itself is not retried here by contract (fail-closed).
type TokenSource interface {
	Token(ctx context.Context) (token string, expiresOn time.Time, err error)
}

// freshnessBuffer is how far ahead of expires_on a cached token is
// considered stale and re-fetched.
const freshnessBuffer = 300 * time.Second

// Client probes the content-safety endpoint
// {endpoint}/contentsafety/text:shieldPrompt?api-version=2024-09-01.
type Client struct {
	endpoint     string
	httpClient   *http.Client
	tokens       TokenSource
	validateHost func(string) error

	mu        sync.Mutex
	cachedTok string
	cachedExp time.Time
	fetching  chan struct{} // non-nil while a fetch is in flight, serializes acquisition
}

// Option configures a Client.
type Option func(*Client)

// WithHostValidator overrides the SSRF hostname check, for tests that need
// to point the client at a local server whose address would otherwise be
// rejected as a blocked loopback IP. Production callers never need this;
// New already defaults to the real ssrf.ValidatePublicHostname.
func WithHostValidator(validate func(string) error) Option {
	return func(c *Client) { c.validateHost = validate }
}

// New constructs a shield client. endpoint's host is validated against the
// SSRF hostname table at call time, not here, since the endpoint can be
// reconfigured without restarting the process.
func New(endpoint string, tokens TokenSource, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{endpoint: endpoint, tokens: tokens, httpClient: httpClient, validateHost: ssrf.ValidatePublicHostname}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type shieldRequest struct {
	UserPrompt string   `json:"userPrompt"`
	Documents  []string `json:"documents"`
}

type shieldResponse struct {
	UserPromptAnalysis struct {
		AttackDetected bool `json:"attackDetected"`
	} `json:"userPromptAnalysis"`
}

// Probe sends the tool's textual arguments to the content-safety endpoint.
// Any HTTP error, non-2xx status, or malformed response is treated as
// fail-closed: it returns AttackDetected=true so the caller denies.
func (c *Client) Probe(ctx context.Context, text string) (Result, error) {
	start := time.Now()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return failClosed(start), fmt.Errorf("shield: invalid endpoint: %w", err)
	}
	if err := c.validateHost(u.Hostname()); err != nil {
		return failClosed(start), fmt.Errorf("shield: endpoint host rejected: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return failClosed(start), fmt.Errorf("shield: token acquisition failed: %w", err)
	}

	body, err := json.Marshal(shieldRequest{UserPrompt: text})
	if err != nil {
		return failClosed(start), err
	}

	reqURL := fmt.Sprintf("%s/contentsafety/text:shieldPrompt?api-version=2024-09-01", u.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return failClosed(start), err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failClosed(start), fmt.Errorf("shield: request failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Seconds() * 1000
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{AttackDetected: true, Detail: fmt.Sprintf("shield endpoint returned %d", resp.StatusCode), ElapsedMs: elapsed}, nil
	}

	var parsed shieldResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{AttackDetected: true, Detail: "malformed shield response", ElapsedMs: elapsed}, nil
	}

	detail := "clean"
	if parsed.UserPromptAnalysis.AttackDetected {
		detail = "attack"
	}
	return Result{AttackDetected: parsed.UserPromptAnalysis.AttackDetected, Detail: detail, ElapsedMs: elapsed}, nil
}

func failClosed(start time.Time) Result {
	return Result{AttackDetected: true, Detail: "shield unavailable", ElapsedMs: time.Since(start).Seconds() * 1000}
}

// token returns a cached token if it is still fresh, otherwise fetches one.
// Concurrent callers serialize on the single in-flight fetch rather than
// each issuing their own request.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedTok != "" && time.Until(c.cachedExp) > freshnessBuffer {
		tok := c.cachedTok
		c.mu.Unlock()
		return tok, nil
	}
	if c.fetching != nil {
		wait := c.fetching
		c.mu.Unlock()
		<-wait
		return c.token(ctx)
	}
	done := make(chan struct{})
	c.fetching = done
	c.mu.Unlock()

	tok, exp, err := c.tokens.Token(ctx)

	c.mu.Lock()
	if err == nil {
		c.cachedTok = tok
		c.cachedExp = exp
	}
	close(done)
	c.fetching = nil
	c.mu.Unlock()

	return tok, err
}
