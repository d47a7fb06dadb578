// Package server exposes a single chat conversation over HTTP. Replies stream
// back as newline-delimited JSON so browser and shell clients can render text as
// it arrives.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/parley/pkg/chat"
	"github.com/papercomputeco/parley/pkg/llm"
)

// Server serves one conversation. The conversation runs one exchange at a time;
// a request arriving while another is in flight gets 409 Conflict.
type Server struct {
	config Config
	client *chat.Client
	sender chat.Sender
	logger *zap.Logger
	app    *fiber.App
}

// ChatRequest is the body of POST /chat and POST /chat/sync.
type ChatRequest struct {
	Text string `json:"text"`
}

// ChatChunk is one line of a POST /chat response.
type ChatChunk struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// ChatReply is the body of a POST /chat/sync response.
type ChatReply struct {
	Reply string `json:"reply"`
}

// LanguageRequest is the body of PUT /language.
type LanguageRequest struct {
	Language string `json:"language"`
}

// HistoryResponse lists the stored conversation turns, oldest first.
type HistoryResponse struct {
	Language string                 `json:"language"`
	Count    int                    `json:"count"`
	Turns    []llm.ConversationTurn `json:"turns"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// New creates a Server. Exchanges go through sender, which is usually client
// itself or a chat.Retrier wrapping it; client owns history and language.
func New(config Config, client *chat.Client, sender chat.Sender, logger *zap.Logger) *Server {
	if sender == nil {
		sender = client
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		client: client,
		sender: sender,
		logger: logger,
		app:    app,
	}

	app.Post("/chat", s.handleChat)
	app.Post("/chat/sync", s.handleChatSync)
	app.Put("/language", s.handleSetLanguage)
	app.Get("/history", s.handleGetHistory)
	app.Delete("/history", s.handleClearHistory)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("model", s.client.Config().Model),
		zap.String("endpoint", s.client.Config().Endpoint()),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting server", zap.String("listen", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

func (s *Server) parseChat(c *fiber.Ctx) (string, error) {
	var req ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "text is required")
	}
	return req.Text, nil
}

// handleChat streams the reply as newline-delimited ChatChunk objects. Failures
// before the first fragment are reported with an HTTP status; later failures end
// the body with an error chunk.
func (s *Server) handleChat(c *fiber.Ctx) error {
	text, err := s.parseChat(c)
	if err != nil {
		return s.fail(c, err)
	}

	stream, err := s.sender.SendStreaming(context.Background(), text)
	if err != nil {
		return s.fail(c, err)
	}

	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Cache-Control", "no-cache")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer stream.Close()
		enc := json.NewEncoder(w)

		for stream.Next() {
			if err := enc.Encode(ChatChunk{Delta: stream.Text()}); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				s.logger.Debug("client went away mid-stream", zap.Error(err))
				return
			}
		}

		final := ChatChunk{Done: true}
		if err := stream.Err(); err != nil {
			final = ChatChunk{Error: err.Error()}
		}
		_ = enc.Encode(final)
		_ = w.Flush()
	}))

	return nil
}

func (s *Server) handleChatSync(c *fiber.Ctx) error {
	text, err := s.parseChat(c)
	if err != nil {
		return s.fail(c, err)
	}

	reply, err := s.sender.Send(c.UserContext(), text)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(ChatReply{Reply: reply})
}

func (s *Server) handleSetLanguage(c *fiber.Ctx) error {
	var req LanguageRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
	}

	lang, err := chat.ParseLanguage(req.Language)
	if err != nil {
		return s.fail(c, fiber.NewError(fiber.StatusBadRequest, err.Error()))
	}

	s.client.SetLanguage(lang)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	turns := s.client.Turns()
	return c.JSON(HistoryResponse{
		Language: string(s.client.Language()),
		Count:    len(turns),
		Turns:    turns,
	})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	s.client.ClearHistory()
	return c.SendStatus(fiber.StatusNoContent)
}

// fail maps an exchange error to a status code and JSON body.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	resp := ErrorResponse{Error: err.Error()}
	status := fiber.StatusBadGateway

	var fe *fiber.Error
	var bad *llm.BadResponseError
	switch {
	case errors.As(err, &fe):
		status = fe.Code
		resp.Error = fe.Message
	case errors.Is(err, llm.ErrBusy):
		status = fiber.StatusConflict
	case errors.Is(err, llm.ErrEmptyCredential):
		status = fiber.StatusPreconditionFailed
	case errors.As(err, &bad):
		resp.UpstreamStatus = bad.StatusCode
	case errors.Is(err, llm.ErrTransport):
		status = fiber.StatusGatewayTimeout
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("exchange failed", zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(resp)
}
