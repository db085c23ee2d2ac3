package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fedquery/internal/config"
	"github.com/roach88/fedquery/internal/server"
	"github.com/roach88/fedquery/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr     string
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer federated queries over HTTP",
		Long: `Serve the query engine over HTTP.

Routes:
  POST /sparql                      answer a query document (federation in the body)
  GET  /federations/:id/molecules   list the molecules of a federation
  GET  /metrics                     Prometheus metrics
  GET  /healthz                     liveness

With --config the federation definitions are registered at startup and
re-registered whenever a .cue file of the directory changes; cached
catalogs are dropped after every change.

Example:
  fedquery serve --addr :8080 --config ./federations`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			logger := newLogger(rootOpts, cmd)
			eng, reg, err := newEngine(st, config.DefaultOptions(), strategy, logger)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQueryDoc, "invalid strategy", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			if dir := rootOpts.Config; dir != "" {
				reload := registerAll(st, dir)
				if err := reload(ctx); err != nil {
					return f.Fail(ExitCommandError, loadErrorCode(err), "failed to register federations", err)
				}
				w := server.NewWatcher(dir, server.InvalidateOnChange(reg, reload), logger)
				g.Go(func() error { return w.Run(ctx) })
			}

			srv := server.New(eng, reg, server.WithLogger(logger))
			g.Go(func() error { return srv.Serve(ctx, addr) })
			if err := g.Wait(); err != nil {
				return f.Fail(ExitFailure, ErrCodeStore, "server stopped", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&strategy, "strategy", "", "join strategy (bushy|left-linear|naive)")
	return cmd
}

// registerAll returns a reload function writing every federation of dir to
// the store. Sources are registered without probing.
func registerAll(st *store.Store, dir string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		res, errs := config.Load(dir, config.LoadModeFailFast)
		if len(errs) > 0 {
			return errs[0]
		}
		for _, fed := range res.Federations {
			if _, err := registerFederation(ctx, st, fed, nil); err != nil {
				return err
			}
		}
		return nil
	}
}
