package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/links"
	"github.com/roach88/fedquery/internal/metadata"
	"github.com/roach88/fedquery/internal/vocab"
)

// BuildSummary reports a metadata build.
type BuildSummary struct {
	Federation string   `json:"federation"`
	Sources    int      `json:"sources"`
	Molecules  []string `json:"molecules"`
	Sink       string   `json:"sink"`
}

// NewMetadataCommand creates the metadata command group.
func NewMetadataCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Describe data sources as RDF molecule templates",
	}
	cmd.AddCommand(newMetadataBuildCommand(rootOpts))
	return cmd
}

func newMetadataBuildCommand(rootOpts *RootOptions) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "build <federation>",
		Short: "Build the molecule templates of every source of a federation",
		Long: `Probe every SPARQL source of a federation for its classes, predicates,
ranges and cardinalities and write the resulting molecule templates to the
federation's metadata graph.

Molecules already in the graph are updated in place and keep their
discovered links. With --endpoint the metadata is written to a SPARQL update
endpoint instead of the local store.

Example:
  fedquery metadata build lslod --config ./federations`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			fed := args[0]
			o, err := federationOptions(rootOpts, fed)
			if err != nil {
				return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load federation options", err)
			}
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if _, err := st.ReadFederation(ctx, fed); err != nil {
				return f.Fail(ExitCommandError, ErrCodeFederation, "unknown federation "+fed, err)
			}
			sources, err := st.ListSources(ctx, fed)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "failed to list sources", err)
			}

			var existing *catalog.Catalog
			if n, err := st.CountGraph(ctx, vocab.GraphFor(fed)); err == nil && n > 0 {
				if existing, err = st.LoadCatalog(ctx, fed); err != nil {
					return f.Fail(ExitCommandError, ErrCodeStore, "failed to load existing metadata", err)
				}
			}

			logger := newLogger(rootOpts, cmd)
			client := newClient(o, logger)
			var sink metadata.Sink = st
			sinkName := rootOpts.Database
			if endpoint != "" {
				sink = metadata.NewEndpointSink(client, endpoint)
				sinkName = endpoint
			}
			writer := metadata.NewBatchWriter(sink, o.WriteBatchSize, logger)
			b := metadata.NewBuilder(client, writer,
				metadata.WithLogger(logger),
				metadata.WithPageSize(o.PageSize))

			c, err := b.Build(ctx, fed, sources, existing)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeRemote, "metadata build failed", err)
			}
			sum := BuildSummary{Federation: fed, Sources: len(sources), Molecules: c.IDs(), Sink: sinkName}
			return f.Emit(sum, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s: %d molecule(s) from %d source(s)\n", fed, len(sum.Molecules), sum.Sources)
				for _, id := range sum.Molecules {
					fmt.Fprintf(w, "  %s\n", id)
				}
			})
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "SPARQL update endpoint receiving the metadata")
	return cmd
}

// DiscoverySummary reports a link discovery run.
type DiscoverySummary struct {
	Federation string   `json:"federation"`
	Pairs      int      `json:"pairs"`
	Links      int      `json:"links"`
	Failed     []string `json:"failed,omitempty"`
}

// NewLinksCommand creates the links command group.
func NewLinksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Discover links between the molecules of different sources",
	}
	cmd.AddCommand(newLinksDiscoverCommand(rootOpts))
	return cmd
}

func newLinksDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "discover <federation>",
		Short: "Explore source pairs for inter-source links",
		Long: `Explore ordered pairs of distinct sources: IRI objects sampled from one
source are typed at the other, and every (molecule, predicate, molecule)
link found is added to the metadata graph.

With --source only the pairs involving that source are explored.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			fed := args[0]
			o, err := federationOptions(rootOpts, fed)
			if err != nil {
				return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load federation options", err)
			}
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			c, err := st.LoadCatalog(ctx, fed)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeFederation, "failed to load catalog of "+fed, err)
			}

			logger := newLogger(rootOpts, cmd)
			writer := metadata.NewBatchWriter(st, o.WriteBatchSize, logger)
			d := links.NewDiscoverer(newClient(o, logger), writer,
				links.WithLogger(logger),
				links.WithWorkers(o.MaxLinkWorkers),
				links.WithSampleLimit(o.LinkSampleLimit),
				links.WithBatchSize(o.LinkBatchSize))

			var res *links.Result
			if sourceID != "" {
				src, ok := c.Source(sourceID)
				if !ok {
					return f.Fail(ExitCommandError, ErrCodeFederation, "unknown source "+sourceID, nil)
				}
				res, err = d.DiscoverFor(ctx, c, src, c.Sources())
			} else {
				res, err = d.DiscoverAll(ctx, c, c.Sources())
			}
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeStore, "link discovery failed", err)
			}

			sum := DiscoverySummary{Federation: fed, Pairs: res.Pairs, Links: len(res.Links)}
			for _, pe := range res.Failed {
				sum.Failed = append(sum.Failed, pe.Error())
			}
			return f.Emit(sum, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s: %d link(s) over %d pair(s)\n", fed, sum.Links, sum.Pairs)
				for _, l := range res.Links {
					fmt.Fprintf(w, "  %s -[%s]-> %s\n", l.From, l.Predicate, l.To)
				}
				for _, msg := range sum.Failed {
					fmt.Fprintf(w, "  ✗ %s\n", msg)
				}
			})
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "only explore pairs involving this source")
	return cmd
}
