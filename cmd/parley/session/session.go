// Package session builds the chat client shared by every parley subcommand
// from the global flags, the config file and the environment.
package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/parley/pkg/chat"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/logger"
)

// Options holds the persistent root flags.
type Options struct {
	ConfigPath string
	Debug      bool
	JSONLogs   bool
	Retries    uint64
	Language   string
}

// Session is a configured client plus the sender exchanges should go through.
type Session struct {
	Client *chat.Client
	Sender chat.Sender
	Logger *zap.Logger
}

// Open loads configuration and constructs the client. When Retries is set the
// client is wrapped in a chat.Retrier.
func Open(opts *Options) (*Session, error) {
	log := logger.New(logger.Options{Debug: opts.Debug, JSON: opts.JSONLogs})

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.Language != "" {
		lang, err := chat.ParseLanguage(opts.Language)
		if err != nil {
			return nil, fmt.Errorf("invalid --lang: %w", err)
		}
		cfg.Language = lang
	}

	if cfg.APIKey == "" {
		log.Warn("no API key configured, set " + config.EnvAPIKey + " or api_key in the config file")
	}

	client := chat.New(cfg, chat.WithLogger(log))

	var sender chat.Sender = client
	if opts.Retries > 0 {
		sender = chat.NewRetrier(client, chat.RetryPolicy{MaxRetries: opts.Retries}, log)
	}

	log.Debug("session ready",
		zap.String("endpoint", cfg.Endpoint()),
		zap.String("model", cfg.Model),
		zap.String("language", string(cfg.Language)),
		zap.Uint64("retries", opts.Retries),
	)

	return &Session{Client: client, Sender: sender, Logger: log}, nil
}
