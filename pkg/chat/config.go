package chat

import (
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/history"
	"github.com/papercomputeco/parley/pkg/transport"
)

// Dialect selects the wire format spoken to the remote endpoint.
type Dialect string

const (
	// DialectResponses speaks the Responses API: instructions + input, typed SSE events.
	DialectResponses Dialect = "responses"

	// DialectChat speaks the chat completions API: messages with a leading system turn.
	DialectChat Dialect = "chat"
)

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4.1-mini"
	DefaultTemperature  = 0.5
	DefaultSystemPrompt = "You are Krishna, answer according to the 18 chapters and 700 verses of the " +
		"Bhagavad Gita, which contains life lessons on morality, strength, discipline and spirituality " +
		"with relevent emoji. Professionally respond conversationally from Bhagavad Geeta and the chapter " +
		"and verse labeled '1'. and '2.'."
)

// Config is the immutable configuration of a Client.
type Config struct {
	// APIKey is the bearer credential. An empty key fails every exchange before
	// any network call.
	APIKey string

	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	Dialect      Dialect
	Model        string
	SystemPrompt string
	Temperature  float64

	// ContextBudget is the maximum character count across the system turn,
	// history and new user turn.
	ContextBudget int

	// MaxHistoryItems caps the stored turns (not pairs).
	MaxHistoryItems int

	RequestTimeout time.Duration

	// Language is the initial answer language.
	Language Language
}

// DefaultConfig returns a Config with every default filled in and no credential.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Dialect:         DialectResponses,
		Model:           DefaultModel,
		SystemPrompt:    DefaultSystemPrompt,
		Temperature:     DefaultTemperature,
		ContextBudget:   history.DefaultBudget,
		MaxHistoryItems: history.DefaultMaxItems,
		RequestTimeout:  transport.DefaultTimeout,
		Language:        English,
	}
}

// withDefaults fills unset fields. Temperature is left alone since zero is valid.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Dialect == "" {
		c.Dialect = d.Dialect
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = d.ContextBudget
	}
	if c.MaxHistoryItems <= 0 {
		c.MaxHistoryItems = d.MaxHistoryItems
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	return c
}

// Endpoint returns the URL exchanges are POSTed to for the configured dialect.
func (c Config) Endpoint() string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	if c.Dialect == DialectChat {
		return base + "/chat/completions"
	}
	return base + "/responses"
}
