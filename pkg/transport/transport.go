// Package transport issues chat requests to the remote completion service and
// hands back the response body as a cancellable sequence of raw lines.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/parley/pkg/llm"
)

const (
	// DefaultTimeout bounds a whole exchange, body included.
	// LLM requests can be slow, especially for long answers.
	DefaultTimeout = 5 * time.Minute

	// MaxResponseSize caps how much of a non-streaming or error body is read.
	MaxResponseSize = 10 * 1024 * 1024

	// MaxLineSize is the largest single stream line accepted.
	MaxLineSize = 1024 * 1024

	acceptHeader = "application/json, text/event-stream"
)

// Options configures a Transport.
type Options struct {
	// Endpoint is the full URL requests are POSTed to.
	Endpoint string

	// APIKey is sent as a bearer credential. It is never logged.
	APIKey string

	// Timeout applies to each request. Zero selects DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Transport sends payloads to a single endpoint.
type Transport struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Transport.
func New(opts Options) *Transport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Endpoint returns the URL requests are sent to.
func (t *Transport) Endpoint() string {
	return t.endpoint
}

// Open sends payload and returns the response body as lines. A non-2xx answer is
// drained and returned as a *llm.BadResponseError before any line is handed out.
// The caller must Close the returned Lines.
func (t *Transport) Open(ctx context.Context, payload any) (*Lines, error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := t.post(ctx, payload)
	if err != nil {
		cancel()
		return nil, err
	}

	if err := t.checkStatus(resp); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	return newLines(resp.Body, cancel), nil
}

// Do sends payload and returns the complete response body.
func (t *Transport) Do(ctx context.Context, payload any) ([]byte, error) {
	resp, err := t.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := t.checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", llm.ErrTransport, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", llm.ErrInvalidResponse)
	}
	return body, nil
}

func (t *Transport) post(ctx context.Context, payload any) (*http.Response, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	httpReq.Header.Set("X-Request-ID", requestID)

	t.logger.Debug("sending request",
		zap.String("url", t.endpoint),
		zap.String("request_id", requestID),
		zap.Int("body_size", len(reqBody)),
	)

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", llm.ErrTransport, err)
	}
	if resp == nil || resp.Body == nil {
		return nil, llm.ErrInvalidResponse
	}

	t.logger.Debug("received response headers",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (t *Transport) checkStatus(resp *http.Response) error {
	if resp.StatusCode < 100 {
		return fmt.Errorf("%w: status %d", llm.ErrInvalidResponse, resp.StatusCode)
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	// Error bodies can arrive as event lines too, so read everything first.
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		t.logger.Debug("error body read incomplete",
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes_read", len(body)),
			zap.Error(err),
		)
	}
	msg := ErrorMessage(body)

	t.logger.Warn("upstream returned error",
		zap.Int("status", resp.StatusCode),
		zap.String("message", truncate(msg, 200)),
	)
	return &llm.BadResponseError{StatusCode: resp.StatusCode, Message: msg}
}

// ErrorMessage extracts the best available message from an error body: the
// envelope message of the whole body, else of the first "data:" line carrying one,
// else the body's non-blank lines joined by spaces.
func ErrorMessage(body []byte) string {
	if msg := envelopeMessage(bytes.TrimSpace(body)); msg != "" {
		return msg
	}

	var joined strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			if msg := envelopeMessage([]byte(strings.TrimSpace(data))); msg != "" {
				return msg
			}
		}
		if line == "" {
			continue
		}
		if joined.Len() > 0 {
			joined.WriteByte(' ')
		}
		joined.WriteString(line)
	}
	return joined.String()
}

func envelopeMessage(data []byte) string {
	if len(data) == 0 || data[0] != '{' {
		return ""
	}
	var env llm.ErrorEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Error == nil {
		return ""
	}
	return env.Error.Message
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
