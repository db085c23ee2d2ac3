package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fedquery/internal/ir"
)

// NewSourceCommand creates the source command group.
func NewSourceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage the data sources of a federation",
	}
	cmd.AddCommand(newSourceAddCommand(rootOpts))
	cmd.AddCommand(newSourceListCommand(rootOpts))
	cmd.AddCommand(newSourceRescanCommand(rootOpts))
	cmd.AddCommand(newSourceRemoveCommand(rootOpts))
	return cmd
}

func newSourceAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		src   ir.DataSource
		typ   string
		probe bool
	)
	cmd := &cobra.Command{
		Use:   "add <federation> <url>",
		Short: "Register a data source",
		Long: `Register a SPARQL endpoint as a data source of a federation.

The identifier defaults to a hash of the federation and URL. Adding a URL
twice returns the existing source.

Example:
  fedquery source add lslod http://drugbank.example/sparql --name drugbank`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			fed := args[0]
			src.URL = args[1]
			src.Type = ir.SourceType(typ)
			src.Triples = -1

			got, inserted, err := st.AddSource(ctx, fed, src)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeFederation, "failed to add source", err)
			}
			if inserted && probe {
				o, err := federationOptions(rootOpts, fed)
				if err != nil {
					return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load federation options", err)
				}
				if n := tripleProber(o, newLogger(rootOpts, cmd))(ctx, got); n >= 0 {
					if err := st.SetSourceTriples(ctx, got.ID, n); err != nil {
						return f.Fail(ExitCommandError, ErrCodeStore, "failed to stamp triple count", err)
					}
					got.Triples = n
				}
			}
			return f.Emit(got, func(w io.Writer) {
				if inserted {
					fmt.Fprintf(w, "✓ added %s (%s)\n", got.ID, got.URL)
				} else {
					fmt.Fprintf(w, "source already registered as %s\n", got.ID)
				}
			})
		},
	}
	cmd.Flags().StringVar(&src.ID, "id", "", "source identifier")
	cmd.Flags().StringVar(&src.Name, "name", "", "display name")
	cmd.Flags().StringVar(&typ, "type", string(ir.SourceSPARQL), "source type")
	cmd.Flags().BoolVar(&probe, "probe", true, "count the triples of the source")
	return cmd
}

func newSourceListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <federation>",
		Short:         "List the data sources of a federation",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			if _, err := st.ReadFederation(cmd.Context(), args[0]); err != nil {
				return f.Fail(ExitCommandError, ErrCodeFederation, "unknown federation "+args[0], err)
			}
			sources, err := st.ListSources(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "failed to list sources", err)
			}
			if sources == nil {
				sources = []ir.DataSource{}
			}
			return f.Emit(sources, func(w io.Writer) {
				for _, s := range sources {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.ID, s.URL, s.Type, s.Triples)
				}
			})
		},
	}
}

func newSourceRescanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rescan <federation> <source-id>",
		Short: "Recount the triples of a data source",
		Long: `Recount the triples of a registered source and update its stored count.

A failing probe leaves the stored count unchanged.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			src, err := st.ReadSource(ctx, args[1])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeFederation, "unknown source "+args[1], err)
			}
			o, err := federationOptions(rootOpts, args[0])
			if err != nil {
				return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load federation options", err)
			}
			n := tripleProber(o, newLogger(rootOpts, cmd))(ctx, src)
			if n < 0 {
				return f.Fail(ExitFailure, ErrCodeRemote, "failed to count triples of "+src.URL, nil)
			}
			if err := st.SetSourceTriples(ctx, src.ID, n); err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "failed to stamp triple count", err)
			}
			src.Triples = n
			return f.Emit(src, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s: %d triples\n", src.ID, n)
			})
		},
	}
}

func newSourceRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <source-id>",
		Short:         "Unregister a data source",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.RemoveSource(cmd.Context(), args[0]); err != nil {
				return f.Fail(ExitCommandError, ErrCodeFederation, "failed to remove source", err)
			}
			return f.Emit(map[string]string{"removed": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ removed %s\n", args[0])
			})
		},
	}
}
