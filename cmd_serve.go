package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmt/hub-spoke-cm-sub000/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the feedback and evolution API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				eng, err := a.engine(ctx, "")
				if err != nil {
					return err
				}
				srv, err := server.New(server.Deps{
					Artifacts: a.ws,
					Feedback:  a.feedback,
					Engine:    eng,
					Metrics:   a.metrics,
					Logger:    a.logger,
				})
				if err != nil {
					return err
				}
				listen := a.cfg.ServerAddr
				if addr != "" {
					listen = addr
				}
				hs := &http.Server{
					Addr:              listen,
					Handler:           srv.Routes(),
					ReadHeaderTimeout: 10 * time.Second,
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				errc := make(chan error, 1)
				go func() {
					a.logger.Info("starting web server", "addr", listen)
					errc <- hs.ListenAndServe()
				}()
				select {
				case err := <-errc:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}
				shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				a.logger.Info("shutting down web server")
				return hs.Shutdown(shutdown)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config.server_addr)")
	return cmd
}
