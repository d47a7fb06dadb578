// Package chat is the conversation-aware client: it keeps the rolling history,
// builds each request, streams the reply back as text fragments and commits the
// finished turn once the exchange succeeds.
//
// A Client holds a single conversation and runs one exchange at a time. Starting
// a second exchange while one is in flight fails with llm.ErrBusy. History is only
// ever changed by a fully successful exchange or by ClearHistory.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/parley/pkg/history"
	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/transport"
)

// Client talks to a remote chat endpoint on behalf of one conversation.
type Client struct {
	config    Config
	history   *history.Manager
	transport *transport.Transport
	logger    *zap.Logger

	langMu   sync.RWMutex
	language Language

	busy atomic.Bool
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the HTTP client built from Config.RequestTimeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// New creates a Client with an empty history.
func New(config Config, opts ...Option) *Client {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	config = config.withDefaults()

	return &Client{
		config:  config,
		history: history.New(config.MaxHistoryItems, config.ContextBudget),
		transport: transport.New(transport.Options{
			Endpoint:   config.Endpoint(),
			APIKey:     config.APIKey,
			Timeout:    config.RequestTimeout,
			HTTPClient: o.httpClient,
			Logger:     o.logger,
		}),
		logger:   o.logger,
		language: config.Language,
	}
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.config
}

// SetLanguage changes the answer language for subsequent exchanges. An exchange
// already in flight keeps the language it started with.
func (c *Client) SetLanguage(lang Language) {
	c.langMu.Lock()
	c.language = lang
	c.langMu.Unlock()
	c.logger.Debug("language changed", zap.String("language", string(lang)))
}

// Language returns the active answer language.
func (c *Client) Language() Language {
	c.langMu.RLock()
	defer c.langMu.RUnlock()
	return c.language
}

// ClearHistory forgets every stored turn.
func (c *Client) ClearHistory() {
	c.history.Clear()
	c.logger.Debug("history cleared")
}

// History returns a copy of the stored turns, oldest first.
func (c *Client) History() []llm.Message {
	return c.history.Turns()
}

// Turns returns the stored history grouped into user/assistant pairs.
func (c *Client) Turns() []llm.ConversationTurn {
	return c.history.Pairs()
}

// SendStreaming starts a streaming exchange for text. Errors that occur before the
// first fragment, including non-2xx responses, are returned here; later failures
// are reported by the Stream. The returned Stream must be drained or closed.
func (c *Client) SendStreaming(ctx context.Context, text string) (*Stream, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}

	lang := c.Language()
	user := UserMessage(text, lang)
	payload := BuildRequest(text, lang, c.history, c.config, true)
	exchangeID := uuid.NewString()
	logger := c.logger.With(zap.String("exchange_id", exchangeID))

	logger.Debug("starting streaming exchange",
		zap.String("model", c.config.Model),
		zap.String("language", string(lang)),
		zap.String("content_preview", truncate(text, 50)),
	)

	streamCtx, cancel := context.WithCancel(ctx)
	lines, err := c.transport.Open(streamCtx, payload)
	if err != nil {
		cancel()
		c.release()
		logger.Warn("streaming exchange failed to open", zap.Error(err))
		return nil, err
	}

	s := newStream(streamCtx, cancel)
	go s.produce(lines, func(reply string) {
		c.history.Commit(user.Content, reply)
		logger.Info("exchange committed",
			zap.Int("reply_chars", history.Characters(reply)),
			zap.Int("history_items", c.history.Len()),
		)
	}, func(err error) {
		if err != nil {
			logger.Warn("streaming exchange failed", zap.Error(err))
		}
		c.release()
	})

	return s, nil
}

// Send runs a non-streaming exchange and returns the whole reply.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	if err := c.acquire(); err != nil {
		return "", err
	}
	defer c.release()

	lang := c.Language()
	user := UserMessage(text, lang)
	payload := BuildRequest(text, lang, c.history, c.config, false)
	logger := c.logger.With(zap.String("exchange_id", uuid.NewString()))
	start := time.Now()

	body, err := c.transport.Do(ctx, payload)
	if err != nil {
		logger.Warn("exchange failed", zap.Error(err))
		return "", err
	}

	reply, err := decodeReply(c.config.Dialect, body)
	if err != nil {
		logger.Warn("exchange failed", zap.Error(err))
		return "", err
	}

	c.history.Commit(user.Content, reply)
	logger.Info("exchange committed",
		zap.Int("reply_chars", history.Characters(reply)),
		zap.Int("history_items", c.history.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return reply, nil
}

func (c *Client) acquire() error {
	if c.config.APIKey == "" {
		return llm.ErrEmptyCredential
	}
	if !c.busy.CompareAndSwap(false, true) {
		return llm.ErrBusy
	}
	return nil
}

func (c *Client) release() {
	c.busy.Store(false)
}

// decodeReply extracts the reply text from a non-streaming body. A 2xx body that
// is an error envelope is reported as a server error.
func decodeReply(dialect Dialect, body []byte) (string, error) {
	var env llm.ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &llm.DecodeError{Err: err}
	}
	if env.Error != nil && env.Error.Message != "" {
		return "", &llm.ServerError{Message: env.Error.Message, Type: env.Error.Type}
	}

	if dialect == DialectChat {
		var resp llm.ChatCompletionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &llm.DecodeError{Err: err}
		}
		if resp.Choices == nil {
			return "", &llm.DecodeError{Err: errors.New("missing choices")}
		}
		return resp.Text(), nil
	}

	var resp llm.ResponsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &llm.DecodeError{Err: err}
	}
	if resp.Output == nil {
		return "", &llm.DecodeError{Err: errors.New("missing output")}
	}
	return resp.Text(), nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
