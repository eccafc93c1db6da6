// Package rosie is the HTTP client for the remote Rosie analysis service:
// it fetches rulesets by name, reports when they last changed, and runs
// rules against a file.
package rosie

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/normalize"
	"github.com/JNZader/rosie/internal/rules"
)

const (
	PathRulesetsQuery       = "/rulesets/query"
	PathRulesetsLastUpdated = "/rulesets/last-updated"
	PathAnalyze             = "/analyze"

	HeaderAPIToken  = "X-Api-Token"
	HeaderRequestID = "X-Request-Id"

	contentTypeJSON = "application/json"
)

var (
	// ErrUnauthorized means the API token was rejected.
	ErrUnauthorized = errors.New("rosie: unauthorized")

	errNotFound = errors.New("rosie: not found")
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimitRPS int
	Retry        RetryConfig
	HTTPClient   *http.Client
	Logger       *logger.Logger
}

// Client talks to the Rosie service. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	log     *logger.Logger
}

// NewClient creates a client. A zero RateLimitRPS disables client-side limiting.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitRPS)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Default().WithPrefix("ROSIE")
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    httpClient,
		limiter: limiter,
		retry:   opts.Retry,
		log:     log,
	}
}

// FetchRulesetsByName returns the rulesets the server knows among names.
// Unknown names are simply absent; a 404 yields no rulesets and no error.
func (c *Client) FetchRulesetsByName(ctx context.Context, names []string) ([]rules.Ruleset, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var resp rulesetsResponse
	err := c.post(ctx, PathRulesetsQuery, namesRequest{Names: names}, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching rulesets: %w", err)
	}

	rulesets := make([]rules.Ruleset, 0, len(resp.Rulesets))
	for _, w := range resp.Rulesets {
		rulesets = append(rulesets, toRuleset(w))
	}
	c.log.Debug("fetched %d of %d rulesets", len(rulesets), len(names))
	return rulesets, nil
}

// FetchRulesetsLastUpdatedTimestamp returns the latest modification
// timestamp across names; ok is false when none of them is recognized.
func (c *Client) FetchRulesetsLastUpdatedTimestamp(ctx context.Context, names []string) (int64, bool, error) {
	if len(names) == 0 {
		return 0, false, nil
	}

	var resp lastUpdatedResponse
	err := c.post(ctx, PathRulesetsLastUpdated, namesRequest{Names: names}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("fetching last updated timestamp: %w", err)
	}
	if resp.Timestamp == nil {
		return 0, false, nil
	}
	return *resp.Timestamp, true, nil
}

// Analyze runs rules against the code of one file.
func (c *Client) Analyze(ctx context.Context, req Request) ([]normalize.Finding, error) {
	if len(req.Rules) == 0 {
		return nil, nil
	}

	body := analysisRequest{
		Filename:     req.Filename,
		Language:     string(req.Language),
		FileEncoding: "utf-8",
		CodeBase64:   base64.StdEncoding.EncodeToString([]byte(req.Code)),
		Rules:        make([]wireRule, 0, len(req.Rules)),
	}
	for _, r := range req.Rules {
		body.Rules = append(body.Rules, fromRule(r))
	}

	var resp analysisResponse
	if err := c.post(ctx, PathAnalyze, body, &resp); err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", req.Filename, err)
	}
	for _, e := range resp.Errors {
		c.log.Warn("analysis of %s reported: %s", req.Filename, e)
	}
	for _, rr := range resp.RuleResponses {
		if rr.ExecutionError != "" {
			c.log.Debug("rule %s failed on %s: %s", rr.Identifier, req.Filename, rr.ExecutionError)
		}
	}
	return toFindings(resp), nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	return WithRetry(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", contentTypeJSON)
		req.Header.Set(HeaderRequestID, uuid.New().String())
		if c.apiKey != "" {
			req.Header.Set(HeaderAPIToken, c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return ErrUnauthorized
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // best effort for error message
			return &StatusError{Method: http.MethodPost, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
}
