package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/parley/cmd/parley/ask"
	chatcmder "github.com/papercomputeco/parley/cmd/parley/chat"
	servecmder "github.com/papercomputeco/parley/cmd/parley/serve"
	"github.com/papercomputeco/parley/cmd/parley/session"
)

const rootLongDesc string = `Parley is a conversational client for OpenAI-compatible completion APIs.

Replies stream to the terminal as they are generated. The conversation keeps
a bounded history and trims the oldest turns to stay inside a character budget.

Configuration is read from $XDG_CONFIG_HOME/parley/config.toml, then from
OPENAI_API_KEY, OPENAI_MODEL, OPENAI_SYSTEM_PROMPT, OPENAI_TEMPERATURE and
OPENAI_BASE_URL.`

func newRootCmd() *cobra.Command {
	opts := &session.Options{}

	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Chat with an LLM from the terminal",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to config.toml")
	flags.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&opts.JSONLogs, "json-logs", false, "Log as JSON")
	flags.Uint64Var(&opts.Retries, "retries", 0, "Retry transient failures this many times")
	flags.StringVarP(&opts.Language, "lang", "l", "", "Answer language (hindi, english, french, spanish, german, mandarin)")

	cmd.AddCommand(chatcmder.NewChatCmd(opts))
	cmd.AddCommand(askcmder.NewAskCmd(opts))
	cmd.AddCommand(servecmder.NewServeCmd(opts))

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
