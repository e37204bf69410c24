// Package remotejob drives the ExtractTable asynchronous job API.
package remotejob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
)

const (
	defaultTriggerURL = "https://trigger.extracttable.com"
	defaultResultURL  = "https://getresult.extracttable.com"
	defaultUsageURL   = "https://validator.extracttable.com"

	// DefaultPollInterval is the fixed wait between status checks.
	DefaultPollInterval = time.Second

	maxErrorBody = 4 << 10
)

// Config configures a Client.
type Config struct {
	TriggerURL   string
	ResultURL    string
	UsageURL     string
	PollInterval time.Duration
	// RequestTimeout bounds each HTTP round trip, not the whole job.
	RequestTimeout time.Duration
}

// Client handles communication with the remote extraction service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	clock      Clock
	logger     *observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the clock used between status checks.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new remote job client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.TriggerURL == "" {
		cfg.TriggerURL = defaultTriggerURL
	}
	if cfg.ResultURL == "" {
		cfg.ResultURL = defaultResultURL
	}
	if cfg.UsageURL == "" {
		cfg.UsageURL = defaultUsageURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		clock:      RealClock(),
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("remotejob")
	return c
}

// SubmitAndFetch submits document, polls until the job leaves Processing and
// returns the converted tables. Cancelling ctx stops polling only; the remote
// job keeps running.
func (c *Client) SubmitAndFetch(ctx context.Context, document []byte, apiKey string) ([]domain.Table, error) {
	if apiKey == "" {
		return nil, domain.ConfigError("remote api key is not configured", nil)
	}

	job, err := c.submit(ctx, document, apiKey)
	if err != nil {
		return nil, err
	}

	log := c.logger.WithContext(ctx)
	log.Info().Str("job_id", job.ID).Int("bytes", len(document)).Msg("remote job submitted")

	result, err := c.await(ctx, job, apiKey)
	if err != nil {
		return nil, err
	}

	tables, err := convertTables(result.Tables, func(index int, what string) {
		log.Warn().Str("job_id", job.ID).Int("table", index).Str("grid", what).
			Msg("sparse grid had index gaps, filled with empty cells")
	})
	if err != nil {
		return nil, domain.MalformedPayloadError(fmt.Sprintf("convert job %s payload", job.ID), err)
	}

	log.Info().Str("job_id", job.ID).Int("polls", job.Polls).Int("tables", len(tables)).Msg("remote job completed")
	return tables, nil
}

// await runs the poll state machine until the job is terminal.
// The first status check happens immediately.
func (c *Client) await(ctx context.Context, job *Job, apiKey string) (*resultResponse, error) {
	for {
		result, err := c.status(ctx, job.ID, apiKey)
		if err != nil {
			return nil, err
		}
		job.Polls++
		job.advance(result.JobStatus)

		switch job.State {
		case StateDone:
			return result, nil
		case StateFailed:
			msg := fmt.Sprintf("remote job %s ended with status %q", job.ID, job.Status)
			if result.Message != "" {
				msg += ": " + result.Message
			}
			return nil, domain.BackendUnavailableError(msg, nil)
		}

		c.logger.Debug().Str("job_id", job.ID).Int("polls", job.Polls).Msg("remote job still processing")

		select {
		case <-ctx.Done():
			return nil, domain.BackendUnavailableError(
				fmt.Sprintf("stopped polling remote job %s", job.ID), ctx.Err())
		case <-c.clock.After(c.cfg.PollInterval):
		}
	}
}

func (c *Client) submit(ctx context.Context, document []byte, apiKey string) (*Job, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("input", "document.pdf")
	if err != nil {
		return nil, domain.IOError("build submission form", err)
	}
	if _, err := part.Write(document); err != nil {
		return nil, domain.IOError("build submission form", err)
	}
	if err := mw.WriteField("dup_check", "False"); err != nil {
		return nil, domain.IOError("build submission form", err)
	}
	if err := mw.Close(); err != nil {
		return nil, domain.IOError("build submission form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TriggerURL, &body)
	if err != nil {
		return nil, domain.ConfigError("build submission request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-api-key", apiKey)

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp submitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, domain.MalformedPayloadError("decode submission response", err)
	}
	if resp.JobID == "" {
		msg := "submission response has no JobId"
		if resp.Message != "" {
			msg += ": " + resp.Message
		}
		return nil, domain.MalformedPayloadError(msg, nil)
	}

	return &Job{ID: resp.JobID, State: StateSubmitted, Status: resp.JobStatus}, nil
}

func (c *Client) status(ctx context.Context, jobID, apiKey string) (*resultResponse, error) {
	u, err := url.Parse(c.cfg.ResultURL)
	if err != nil {
		return nil, domain.ConfigError("parse result url", err)
	}
	q := u.Query()
	q.Set("JobId", jobID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domain.ConfigError("build status request", err)
	}
	req.Header.Set("x-api-key", apiKey)

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if err := validateResult(data); err != nil {
		return nil, domain.MalformedPayloadError(fmt.Sprintf("job %s status payload", jobID), err)
	}

	var resp resultResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, domain.MalformedPayloadError(fmt.Sprintf("decode job %s status", jobID), err)
	}
	return &resp, nil
}

// RemainingCredits queries the usage endpoint and returns credits minus used.
func (c *Client) RemainingCredits(ctx context.Context, apiKey string) (int, error) {
	if apiKey == "" {
		return 0, domain.ConfigError("remote api key is not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UsageURL, nil)
	if err != nil {
		return 0, domain.ConfigError("build usage request", err)
	}
	req.Header.Set("x-api-key", apiKey)

	data, err := c.do(req)
	if err != nil {
		return 0, err
	}

	var resp usageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, domain.MalformedPayloadError("decode usage response", err)
	}
	remaining, ok := resp.remaining()
	if !ok {
		return 0, domain.MalformedPayloadError("usage response has no credits", nil)
	}
	return remaining, nil
}

// do sends req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.BackendUnavailableError(fmt.Sprintf("%s %s", req.Method, req.URL.Host), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, domain.BackendUnavailableError(
			fmt.Sprintf("%s %s returned status %d: %s", req.Method, req.URL.Host, resp.StatusCode, bytes.TrimSpace(body)), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.BackendUnavailableError(fmt.Sprintf("read %s response", req.URL.Host), err)
	}
	return data, nil
}
