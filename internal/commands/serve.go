package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"conti/internal/cli"
	apphttp "conti/internal/http"
	applog "conti/internal/log"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger as a JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = ":" + a.cfg.Port
			}
			ctx, stop := cli.SignalContext(commandContext(cmd))
			defer stop()

			return a.withSession(cmd, true, func(_ context.Context, s *cli.Session) error {
				if st := s.Service.Status(); !st.Durable {
					a.logger.Warn("Serving without durable storage", applog.FieldBackend, st.Backend, "reason", st.Reason)
				}
				srv := apphttp.NewServer(addr, s.Service, apphttp.Options{
					RateLimitPerMinute: a.cfg.RateLimitPerIP,
					CacheTTL:           a.cfg.CacheTTL,
					Logger:             a.logger,
				})
				return srv.Run(ctx, shutdownGrace)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")

	return cmd
}
