package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/parley/cmd/parley/session"
	"github.com/papercomputeco/parley/pkg/chat"
	"github.com/papercomputeco/parley/pkg/llm"
)

const chatLongDesc string = `Start an interactive conversation.

Each line you enter is sent as one user turn and the reply streams back as it
is generated. Lines starting with a slash are commands:

  /lang <name>  answer in another language
  /clear        forget the conversation so far
  /retry        re-send the last input that failed
  /quit         leave

Examples:
  parley chat
  parley chat --lang hindi
  echo "What is dharma?" | parley chat`

const chatShortDesc string = "Interactive streaming conversation"

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

type chatCommander struct {
	opts *session.Options
}

func NewChatCmd(opts *session.Options) *cobra.Command {
	cmder := &chatCommander{opts: opts}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	sess, err := session.Open(c.opts)
	if err != nil {
		return err
	}
	defer sess.Logger.Sync()

	r := &repl{
		client:      sess.Client,
		sender:      sess.Sender,
		logger:      sess.Logger,
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		interactive: isTerminal(cmd.InOrStdin()),
	}
	return r.loop(ctx)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// repl reads one user turn per line. The prompt and banners are only printed
// when input is a terminal so piped use produces just the replies.
type repl struct {
	client      *chat.Client
	sender      chat.Sender
	logger      *zap.Logger
	in          io.Reader
	out         io.Writer
	interactive bool

	lastFailed string
}

func (r *repl) loop(ctx context.Context) error {
	if r.interactive {
		r.notice(fmt.Sprintf("Answering in %s. /quit to leave.", r.client.Language()))
	}

	scanner := bufio.NewScanner(r.in)
	for {
		if r.interactive {
			fmt.Fprint(r.out, promptStyle.Render("you ›")+" ")
		}
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		r.exchange(ctx, line)
	}

	return scanner.Err()
}

// command runs a slash command and reports whether the loop should end.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/clear":
		r.client.ClearHistory()
		r.lastFailed = ""
		r.notice("History cleared.")

	case "/lang":
		if arg == "" {
			r.notice(fmt.Sprintf("Answering in %s. Available: %s", r.client.Language(), languageList()))
			return false, nil
		}
		lang, err := chat.ParseLanguage(arg)
		if err != nil {
			r.failure(err)
			return false, nil
		}
		r.client.SetLanguage(lang)
		r.notice(fmt.Sprintf("Answering in %s.", lang))

	case "/retry":
		if r.lastFailed == "" {
			r.notice("Nothing to retry.")
			return false, nil
		}
		r.exchange(ctx, r.lastFailed)

	default:
		r.notice(fmt.Sprintf("Unknown command %s. Try /lang, /clear, /retry or /quit.", name))
	}

	return false, nil
}

// exchange streams one reply to out. A failed input is remembered for /retry.
func (r *repl) exchange(ctx context.Context, text string) {
	stream, err := r.sender.SendStreaming(ctx, text)
	if err != nil {
		r.lastFailed = text
		r.failure(err)
		return
	}
	defer stream.Close()

	wrote := false
	for fragment, err := range stream.Fragments() {
		if err != nil {
			if wrote {
				fmt.Fprintln(r.out)
			}
			r.lastFailed = text
			r.failure(err)
			return
		}
		fmt.Fprint(r.out, fragment)
		wrote = true
	}
	fmt.Fprintln(r.out)
	r.lastFailed = ""
}

func (r *repl) notice(msg string) {
	fmt.Fprintln(r.out, noticeStyle.Render(msg))
}

func (r *repl) failure(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, llm.ErrEmptyCredential):
		msg = "No API key configured. Set OPENAI_API_KEY or api_key in the config file."
	case errors.Is(err, context.Canceled):
		msg = "Cancelled."
	}
	r.logger.Debug("exchange failed", zap.Error(err))
	fmt.Fprintln(r.out, errorStyle.Render("error: "+msg))
}

func languageList() string {
	names := make([]string, 0, len(chat.Languages()))
	for _, l := range chat.Languages() {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}
