package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fedquery/internal/config"
	"github.com/roach88/fedquery/internal/queryir"
	"github.com/roach88/fedquery/internal/sparql"
	"github.com/roach88/fedquery/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // metadata store path
	Config   string // federation definitions directory, optional
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultDatabase is the metadata store used when --db is not given.
const DefaultDatabase = "fedquery.db"

// NewRootCommand creates the root command for the fedquery CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fedquery",
		Short: "Federated SPARQL query engine",
		Long: `fedquery answers queries over a federation of SPARQL endpoints.

It describes every source as RDF molecule templates, discovers the links
between them, decomposes queries into per-source subqueries and joins the
answers locally.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", DefaultDatabase, "path to the SQLite metadata store")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "directory of CUE federation definitions")

	cmd.AddCommand(NewFederationCommand(opts))
	cmd.AddCommand(NewSourceCommand(opts))
	cmd.AddCommand(NewMetadataCommand(opts))
	cmd.AddCommand(NewLinksCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewDecomposeCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger returns a text logger on the command's stderr; --verbose
// enables Debug.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func openStore(opts *RootOptions, f *OutputFormatter) (*store.Store, error) {
	f.VerboseLog("opening metadata store %s", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open metadata store", err)
	}
	return st, nil
}

// federationOptions returns the options declared for a federation in the
// --config directory, or the defaults without one.
func federationOptions(opts *RootOptions, federation string) (config.Options, error) {
	if opts.Config == "" {
		return config.DefaultOptions(), nil
	}
	res, errs := config.Load(opts.Config, config.LoadModeFailFast)
	if len(errs) > 0 {
		return config.Options{}, errs[0]
	}
	if fed := res.Federation(federation); fed != nil {
		return fed.Options, nil
	}
	return config.DefaultOptions(), nil
}

func newClient(o config.Options, logger *slog.Logger) *sparql.HTTPClient {
	return sparql.NewHTTPClient(
		sparql.WithTimeout(o.Timeout),
		sparql.WithLogger(logger),
	)
}

// readQuery parses a YAML or JSON query document; "-" reads stdin.
func readQuery(path string, stdin io.Reader) (*queryir.Query, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read query document: %w", err)
	}
	return queryir.ParseDocument(data)
}
