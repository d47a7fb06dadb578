package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/parley/cmd/parley/session"
)

const askLongDesc string = `Ask a single question and print the reply.

The question is taken from the arguments, or from stdin when none are given.
By default the reply streams as it is generated. With --render the full reply
is collected first and rendered as markdown for the terminal.

Examples:
  parley ask "What does chapter 2 say about duty?"
  parley ask --render --lang french "Explain karma yoga"
  cat question.txt | parley ask`

const askShortDesc string = "Ask a one-shot question"

const defaultWrapWidth = 80

type askCommander struct {
	opts   *session.Options
	render bool
}

func NewAskCmd(opts *session.Options) *cobra.Command {
	cmder := &askCommander{opts: opts}

	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: askShortDesc,
		Long:  askLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().BoolVarP(&cmder.render, "render", "r", false, "Render the reply as markdown")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	question, err := readQuestion(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	sess, err := session.Open(c.opts)
	if err != nil {
		return err
	}
	defer sess.Logger.Sync()

	out := cmd.OutOrStdout()

	if c.render {
		reply, err := sess.Sender.Send(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderMarkdown(reply, wrapWidth(out)))
		return nil
	}

	stream, err := sess.Sender.SendStreaming(ctx, question)
	if err != nil {
		return err
	}
	for fragment, err := range stream.Fragments() {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)
	return nil
}

func readQuestion(in io.Reader, args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("could not read question from stdin: %w", err)
		}
		question = strings.TrimSpace(string(b))
	}
	if question == "" {
		return "", errors.New("no question given")
	}
	return question, nil
}

// renderMarkdown returns content unchanged if the renderer cannot be built.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func wrapWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWrapWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWrapWidth
	}
	return width
}
