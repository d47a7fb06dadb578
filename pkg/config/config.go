// Package config loads client settings from a TOML file and the environment.
//
// Precedence, lowest first: built-in defaults, the config file, environment
// variables. Blank strings never override a value and an unparseable number
// falls back to what was already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parley/pkg/chat"
)

// Environment variable names.
const (
	EnvAPIKey       = "OPENAI_API_KEY"
	EnvModel        = "OPENAI_MODEL"
	EnvSystemPrompt = "OPENAI_SYSTEM_PROMPT"
	EnvTemperature  = "OPENAI_TEMPERATURE"
	EnvBaseURL      = "OPENAI_BASE_URL"
)

// File is the on-disk shape of config.toml.
type File struct {
	APIKey          string   `toml:"api_key"`
	BaseURL         string   `toml:"base_url"`
	Dialect         string   `toml:"dialect"`
	Model           string   `toml:"model"`
	SystemPrompt    string   `toml:"system_prompt"`
	Temperature     *float64 `toml:"temperature"`
	ContextBudget   int      `toml:"context_budget"`
	MaxHistoryItems int      `toml:"max_history_items"`
	RequestTimeout  string   `toml:"request_timeout"`
	Language        string   `toml:"language"`
}

// DefaultPath returns $XDG_CONFIG_HOME/parley/config.toml, or the same under
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "parley", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "parley", "config.toml"), nil
}

// Load builds a chat.Config. An empty path means DefaultPath, which may be absent;
// an explicit path must exist.
func Load(path string) (chat.Config, error) {
	cfg := chat.DefaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	var file File
	_, err := toml.DecodeFile(path, &file)
	switch {
	case err == nil:
		if err := file.apply(&cfg); err != nil {
			return cfg, fmt.Errorf("invalid config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("could not read config %s: %w", path, err)
	}

	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

func (f *File) apply(cfg *chat.Config) error {
	setString(&cfg.APIKey, f.APIKey)
	setString(&cfg.BaseURL, f.BaseURL)
	setString(&cfg.Model, f.Model)
	setString(&cfg.SystemPrompt, f.SystemPrompt)

	if d := strings.TrimSpace(f.Dialect); d != "" {
		switch chat.Dialect(d) {
		case chat.DialectResponses, chat.DialectChat:
			cfg.Dialect = chat.Dialect(d)
		default:
			return fmt.Errorf("unknown dialect %q", d)
		}
	}
	if f.Temperature != nil {
		cfg.Temperature = *f.Temperature
	}
	if f.ContextBudget > 0 {
		cfg.ContextBudget = f.ContextBudget
	}
	if f.MaxHistoryItems > 0 {
		cfg.MaxHistoryItems = f.MaxHistoryItems
	}
	if t := strings.TrimSpace(f.RequestTimeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if l := strings.TrimSpace(f.Language); l != "" {
		lang, err := chat.ParseLanguage(l)
		if err != nil {
			return err
		}
		cfg.Language = lang
	}
	return nil
}

func applyEnv(cfg *chat.Config, getenv func(string) string) {
	setString(&cfg.APIKey, getenv(EnvAPIKey))
	setString(&cfg.Model, getenv(EnvModel))
	setString(&cfg.SystemPrompt, getenv(EnvSystemPrompt))
	setString(&cfg.BaseURL, getenv(EnvBaseURL))

	if v := strings.TrimSpace(getenv(EnvTemperature)); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = t
		}
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
