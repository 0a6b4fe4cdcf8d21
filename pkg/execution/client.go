// Package execution runs programs on a Judge0 compatible execution service. A run submits the
// source once and then polls the submission, strictly sequentially and with bounded exponential
// backoff, until it reaches a terminal status.
package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff"
)

const maxBodySize = 1 << 20

type Config struct {
	BaseURL string
	// APIKey and APIHost are sent as X-RapidAPI-Key and X-RapidAPI-Host when set.
	APIKey  string
	APIHost string

	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://judge0-ce.p.rapidapi.com",
		APIHost:         "judge0-ce.p.rapidapi.com",
		MaxAttempts:     30,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      2 * time.Minute,
	}
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse execution url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("execution url must be http or https, got '%s'", cfg.BaseURL)
	}
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = defaults.MaxElapsed
	}
	c := &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type submissionRequest struct {
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin"`
	LanguageID any    `json:"language_id"`
}

// Submit creates a submission for req. The creation request is never retried. observe may be
// nil.
func (c *Client) Submit(ctx context.Context, req Request, observe Observer) (*Job, error) {
	job := &Job{}
	if err := c.submit(ctx, job, req, observe); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) submit(ctx context.Context, job *Job, req Request, observe Observer) error {
	c.move(job, Submitting, observe)

	var languageID any = req.LanguageID
	if n, err := strconv.Atoi(req.LanguageID); err == nil {
		languageID = n
	}
	body, err := json.Marshal(submissionRequest{
		SourceCode: req.SourceText,
		Stdin:      req.StdinText,
		LanguageID: languageID,
	})
	if err != nil {
		c.move(job, TransportFailed, observe)
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, c.base.JoinPath("submissions"), body, "create submission")
	if err != nil {
		return c.fail(ctx, job, err, observe)
	}
	var created submissionResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		c.move(job, TransportFailed, observe)
		return &DecodeError{Err: err}
	}
	if created.Token == "" {
		c.move(job, TransportFailed, observe)
		return &TransportError{Op: "create submission", Err: errors.New("response carried no token")}
	}
	job.Token = created.Token
	c.logger.Info("created submission", "token", job.Token, "language", req.LanguageID)
	c.move(job, Queued, observe)
	return nil
}

// Poll fetches the status of job until it is terminal. Each request waits for the previous
// response, and every state change is delivered to observe before the next request is sent.
func (c *Client) Poll(ctx context.Context, job *Job, observe Observer) error {
	if job.State.Terminal() {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	b.MaxElapsedTime = c.cfg.MaxElapsed
	b.Reset()

	target := c.base.JoinPath("submissions", job.Token)
	target.RawQuery = url.Values{"base64_encoded": []string{"true"}}.Encode()

	for {
		if job.Attempts >= c.cfg.MaxAttempts {
			c.move(job, TimedOut, observe)
			return fmt.Errorf("%w: gave up after %d attempts", ErrPollTimeout, job.Attempts)
		}
		job.Attempts++
		raw, err := c.do(ctx, http.MethodGet, target, nil, "check submission")
		if err != nil {
			return c.fail(ctx, job, err, observe)
		}
		var r submissionResponse
		if err := json.Unmarshal(raw, &r); err != nil {
			c.move(job, TransportFailed, observe)
			return &DecodeError{Err: err}
		}
		state := classify(r)
		if err := fill(job, r); err != nil {
			c.move(job, Unknown, observe)
			return err
		}
		c.move(job, state, observe)
		if state.Terminal() {
			return nil
		}
		if job.Attempts >= c.cfg.MaxAttempts {
			continue
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			c.move(job, TimedOut, observe)
			return fmt.Errorf("%w: gave up after %s", ErrPollTimeout, c.cfg.MaxElapsed)
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			c.move(job, Cancelled, observe)
			return fmt.Errorf("stopped polling: %w", ctx.Err())
		}
	}
}

// Run submits req, polls it to completion and renders the outcome. The job is returned to Idle
// once it has finished, whichever way it finished.
func (c *Client) Run(ctx context.Context, req Request, observe Observer) (string, error) {
	job := &Job{}
	defer func() {
		if job.State.Terminal() {
			c.move(job, Idle, observe)
		}
	}()
	if err := c.submit(ctx, job, req, observe); err != nil {
		return "", err
	}
	if err := c.Poll(ctx, job, observe); err != nil {
		return "", err
	}
	return Render(job)
}

func (c *Client) fail(ctx context.Context, job *Job, err error, observe Observer) error {
	if ctx.Err() != nil {
		c.move(job, Cancelled, observe)
		return fmt.Errorf("stopped: %w", ctx.Err())
	}
	c.move(job, TransportFailed, observe)
	return err
}

func (c *Client) move(job *Job, to State, observe Observer) {
	from := job.State
	if !CanTransition(from, to) {
		c.logger.Warn("unexpected job transition", "token", job.Token, "from", from, "to", to)
	}
	job.State = to
	c.logger.Debug("job transition", "token", job.Token, "from", from, "to", to, "attempts", job.Attempts)
	if observe != nil {
		observe(Transition{From: from, To: to, Job: *job})
	}
}

func (c *Client) do(ctx context.Context, method string, target *url.URL, body []byte, op string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	}
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: snippet(raw)}
	}
	return raw, nil
}

func snippet(raw []byte) string {
	const limit = 256
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}

// fill copies a poll response onto job, decoding the base64 output fields.
func fill(job *Job, r submissionResponse) error {
	if r.Status != nil {
		job.Description = r.Status.Description
	}
	var err error
	if job.Stdout, err = decodeField("stdout", r.Stdout); err != nil {
		return err
	}
	if job.Stderr, err = decodeField("stderr", r.Stderr); err != nil {
		return err
	}
	if job.CompileOutput, err = decodeField("compile_output", r.CompileOutput); err != nil {
		return err
	}
	job.hasStderr = r.Stderr != nil
	job.hasCompile = r.CompileOutput != nil
	job.Time = string(r.Time)
	job.Memory = string(r.Memory)
	return nil
}

// decodeField decodes standard base64, ignoring the line breaks Judge0 inserts.
func decodeField(name string, v *string) (string, error) {
	if v == nil {
		return "", nil
	}
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, *v)
	out, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", &DecodeError{Field: name, Err: err}
	}
	return string(out), nil
}

// Render turns a finished job into the text shown to the user. Execution statistics win over
// stderr, which wins over compile output.
func Render(job *Job) (string, error) {
	switch {
	case job.Time != "" && job.Memory != "":
		return fmt.Sprintf("Results :\n%s\nExecution Time : %s Secs\nMemory used : %s bytes", job.Stdout, job.Time, job.Memory), nil
	case job.Stderr != "":
		return "Error: " + job.Stderr, nil
	case job.CompileOutput != "":
		return "Error: " + job.CompileOutput, nil
	}
	return "", ErrUnknownOutcome
}
