package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/fedquery/internal/config"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/metadata"
	"github.com/roach88/fedquery/internal/store"
)

// FederationSummary reports one registered federation.
type FederationSummary struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Sources []ir.DataSource `json:"sources"`
	Added   int             `json:"added"`
}

// NewFederationCommand creates the federation command group.
func NewFederationCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "federation",
		Short: "Register and list federations",
	}
	cmd.AddCommand(newFederationLoadCommand(rootOpts))
	cmd.AddCommand(newFederationListCommand(rootOpts))
	return cmd
}

func newFederationLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "load <config-dir>",
		Short: "Register the federations declared in a CUE directory",
		Long: `Register every federation and data source declared in a directory of CUE
definitions in the metadata store.

Sources already registered (same federation and URL) are kept as they are.
New sources get their triple count stamped by a COUNT(*) probe unless
--probe=false is given.

Example:
  fedquery federation load ./federations --db ./fedquery.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			res, errs := config.Load(args[0], config.LoadModeFailFast)
			if len(errs) > 0 {
				return reportLoadErrors(f, errs)
			}
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			logger := newLogger(rootOpts, cmd)
			var summaries []FederationSummary
			for _, fed := range res.Federations {
				var prober func(ctx context.Context, src ir.DataSource) int
				if probe {
					prober = tripleProber(fed.Options, logger)
				}
				sum, err := registerFederation(cmd.Context(), st, fed, prober)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeStore, "failed to register federation "+fed.ID, err)
				}
				summaries = append(summaries, sum)
			}
			return f.Emit(summaries, func(w io.Writer) {
				for _, s := range summaries {
					fmt.Fprintf(w, "✓ %s: %d source(s), %d new\n", s.ID, len(s.Sources), s.Added)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", true, "count the triples of new sources")
	return cmd
}

func newFederationListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered federations",
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

			feds, err := st.ListFederations(cmd.Context())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "failed to list federations", err)
			}
			if feds == nil {
				feds = []ir.Federation{}
			}
			return f.Emit(feds, func(w io.Writer) {
				if len(feds) == 0 {
					fmt.Fprintln(w, "No federations registered.")
				}
				for _, fed := range feds {
					fmt.Fprintf(w, "%s\t%s\n", fed.ID, fed.Name)
				}
			})
		},
	}
}

// registerFederation writes a federation and its sources to the store.
// prober, if non-nil, stamps the triple count of newly added sources.
func registerFederation(ctx context.Context, st *store.Store, fed *config.Federation, prober func(context.Context, ir.DataSource) int) (FederationSummary, error) {
	sum := FederationSummary{ID: fed.ID, Name: fed.Name}
	if err := st.WriteFederation(ctx, fed.Info()); err != nil {
		return sum, err
	}
	for _, src := range fed.Sources {
		got, inserted, err := st.AddSource(ctx, fed.ID, src)
		if err != nil {
			return sum, err
		}
		if inserted {
			sum.Added++
			if prober != nil {
				if n := prober(ctx, got); n >= 0 {
					if err := st.SetSourceTriples(ctx, got.ID, n); err != nil {
						return sum, err
					}
					got.Triples = n
				}
			}
		}
		sum.Sources = append(sum.Sources, got)
	}
	return sum, nil
}

// tripleProber counts a source's triples, logging failures and returning
// -1 for them.
func tripleProber(o config.Options, logger *slog.Logger) func(context.Context, ir.DataSource) int {
	b := metadata.NewBuilder(newClient(o, logger), nil, metadata.WithLogger(logger))
	return func(ctx context.Context, src ir.DataSource) int {
		n, err := b.CountTriples(ctx, src)
		if err != nil {
			logger.Warn("triple count probe failed", "source", src.ID, "error", err)
			return -1
		}
		return n
	}
}

// reportLoadErrors outputs config load errors. Errors before any file was
// compiled are command errors; definition errors are validation failures.
func reportLoadErrors(f *OutputFormatter, errs []error) error {
	var le *config.LoadError
	if !errors.As(errs[0], &le) {
		return f.Fail(ExitCommandError, config.ErrCodeGeneric, errs[0].Error(), nil)
	}
	exit := ExitFailure
	switch le.Code {
	case config.ErrCodeScanError, config.ErrCodeNoFiles, config.ErrCodeNotFound, config.ErrCodeLoadFailed:
		exit = ExitCommandError
	}
	return f.Fail(exit, le.Code, le.Message, nil)
}

// loadErrorCode returns the code of a config load error, or E001.
func loadErrorCode(err error) string {
	var le *config.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return config.ErrCodeGeneric
}
