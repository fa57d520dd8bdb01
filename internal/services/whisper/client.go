package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"cuebatch/internal/logging"
	"cuebatch/internal/services"
	"cuebatch/internal/subtitles"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultModel        = "whisper-1"
	defaultTimeout      = 120 * time.Second
	defaultMaxFileBytes = 24 * 1024 * 1024

	transcriptionsPath = "audio/transcriptions"
	translationsPath   = "audio/translations"

	stageName = "transcription"
)

// Config captures the runtime settings required to talk to the audio API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	SourceLanguage string
	// MaxFileBytes is the inclusive upload ceiling. Larger files are rejected
	// before any request is made.
	MaxFileBytes int64
	// Timeout bounds each call independently.
	Timeout time.Duration
}

// Client wraps the OpenAI-compatible transcription and translation endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cfg.SourceLanguage = strings.TrimSpace(cfg.SourceLanguage)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "whisper")
	return client
}

// MaxFileBytes returns the upload ceiling.
func (c *Client) MaxFileBytes() int64 { return c.cfg.MaxFileBytes }

// CheckSize rejects sizes above the ceiling. A file exactly at the ceiling is accepted.
func (c *Client) CheckSize(size int64) error {
	if size > c.cfg.MaxFileBytes {
		return services.Wrap(services.ErrTooLarge, stageName, "size check",
			fmt.Sprintf("file is %d bytes, limit is %d", size, c.cfg.MaxFileBytes), nil)
	}
	return nil
}

// Transcribe returns source-language segments for the audio in path.
func (c *Client) Transcribe(ctx context.Context, path string) ([]subtitles.Segment, error) {
	return c.call(ctx, transcriptionsPath, "transcribe", path, c.cfg.SourceLanguage)
}

// Translate returns English segments for the audio in path.
func (c *Client) Translate(ctx context.Context, path string) ([]subtitles.Segment, error) {
	return c.call(ctx, translationsPath, "translate", path, "")
}

func (c *Client) call(ctx context.Context, endpointPath, op, path, language string) ([]subtitles.Segment, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, op, "api key required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, stageName, op, "stat audio", err)
	}
	if err := c.CheckSize(info.Size()); err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, endpointPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, op, "build url", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	logger := logging.WithContext(ctx, c.logger).With(
		logging.String("op", op),
		logging.String(logging.FieldCorrelationID, requestID),
	)

	body, contentType := newMultipartBody(path, fields{
		model:    c.cfg.Model,
		language: language,
	})
	defer body.Close()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, op, "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", requestID)

	started := time.Now()
	logger.Debug("uploading audio", logging.Int64("size_bytes", info.Size()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &httpStatusError{StatusCode: resp.StatusCode, Body: summarize(payload)}
		marker := services.ErrExternalTool
		if statusErr.transient() {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, stageName, op, "service rejected request", statusErr)
	}

	segments, err := decodeSegments(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, op, "decode response", err)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrEmptyResult, stageName, op, "no segments returned", nil)
	}
	logger.Debug("audio processed",
		logging.Int("segment_count", len(segments)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return segments, nil
}

// transportError classifies failures of the HTTP exchange itself. Only the
// per-call deadline is reported as a timeout; parent cancellation passes through.
func (c *Client) transportError(parent, callCtx context.Context, op string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stageName, op,
			fmt.Sprintf("no response within %s", c.cfg.Timeout), err)
	}
	return services.Wrap(services.ErrExternalTool, stageName, op, "http error", err)
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

func (e *httpStatusError) transient() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	const limit = 256
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
