package servecmder

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/parley/cmd/parley/session"
	"github.com/papercomputeco/parley/server"
)

const serveLongDesc string = `Serve the conversation over HTTP.

Routes:
  POST   /chat        stream a reply as newline-delimited JSON
  POST   /chat/sync   return the whole reply at once
  PUT    /language    change the answer language
  GET    /history     list stored turns
  DELETE /history     forget the conversation
  GET    /health      liveness check

Examples:
  parley serve
  parley serve --listen 127.0.0.1:9090 --retries 3`

const serveShortDesc string = "Run the HTTP server"

type serveCommander struct {
	opts       *session.Options
	listenAddr string
}

func NewServeCmd(opts *session.Options) *cobra.Command {
	cmder := &serveCommander{opts: opts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.listenAddr, "listen", ":8080", "Address to listen on")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	sess, err := session.Open(c.opts)
	if err != nil {
		return err
	}
	defer sess.Logger.Sync()

	srv := server.New(server.Config{ListenAddr: c.listenAddr}, sess.Client, sess.Sender, sess.Logger)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			if err := srv.Shutdown(); err != nil {
				sess.Logger.Error("shutdown failed", zap.Error(err))
			}
		case <-done:
		}
	}()

	return srv.Run()
}
