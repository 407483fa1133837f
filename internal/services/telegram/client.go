package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/messaging"
)

const (
	defaultBaseURL        = "https://api.telegram.org"
	defaultRequestTimeout = 30 * time.Second
	defaultUploadTimeout  = 10 * time.Minute
)

// Config captures Bot API connection settings.
type Config struct {
	Token          string
	BaseURL        string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
}

// Client talks to the Bot API. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ messaging.Gateway = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. Timeouts are applied per
// request through the context, so the client should not set its own.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a Bot API client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logging.NewComponentLogger(logger, "telegram"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FromConfig builds a client from the telegram section.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return New(Config{
		Token:          cfg.Telegram.BotToken,
		BaseURL:        cfg.Telegram.APIBaseURL,
		RequestTimeout: time.Duration(cfg.Telegram.RequestTimeout) * time.Second,
		UploadTimeout:  time.Duration(cfg.Telegram.UploadTimeout) * time.Second,
	}, logger)
}

// APIError is a Bot API failure that is neither a size rejection nor flood
// control.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s: status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.StatusCode, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) endpoint(method string) string {
	return c.cfg.BaseURL + "/bot" + c.cfg.Token + "/" + method
}

// call posts a JSON request and decodes the result into out (when non-nil).
func (c *Client) call(ctx context.Context, method string, params any, out any, timeout time.Duration) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, redact(err, c.cfg.Token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return fmt.Errorf("telegram %s: %w", method, messaging.ErrTooLarge)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(truncate(raw, 200)))}
	}
	if !envelope.OK {
		return classify(method, resp.StatusCode, envelope)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func classify(method string, status int, envelope apiResponse) error {
	code := envelope.ErrorCode
	if code == 0 {
		code = status
	}
	desc := envelope.Description
	lower := strings.ToLower(desc)
	switch {
	case code == http.StatusTooManyRequests:
		retry := time.Second
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			retry = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return fmt.Errorf("telegram %s: %w", method, &messaging.RateLimitError{RetryAfter: retry})
	case code == http.StatusRequestEntityTooLarge, strings.Contains(lower, "too large"), strings.Contains(lower, "too big"),
		strings.Contains(lower, "too long"):
		return fmt.Errorf("telegram %s: %s: %w", method, desc, messaging.ErrTooLarge)
	}
	return &APIError{Method: method, StatusCode: code, Description: desc}
}

// IsNotModified reports whether err is the harmless "message is not
// modified" rejection.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
}

// redact strips the bot token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}

func truncate(b []byte, limit int) []byte {
	if len(b) <= limit {
		return b
	}
	return b[:limit]
}
