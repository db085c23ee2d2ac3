package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/config"
	"github.com/roach88/fedquery/internal/engine"
	"github.com/roach88/fedquery/internal/planner"
	"github.com/roach88/fedquery/internal/store"
)

// newEngine builds an engine over the store's catalogs that records every
// query in the store. An empty strategy uses the federation's configured one.
func newEngine(st *store.Store, o config.Options, strategy string, logger *slog.Logger) (*engine.Engine, *catalog.Registry, error) {
	s := o.JoinStrategy
	if strategy != "" {
		parsed, err := planner.ParseStrategy(strategy)
		if err != nil {
			return nil, nil, err
		}
		s = parsed
	}
	reg := catalog.NewRegistry(st, 0, logger)
	eng := engine.New(reg, newClient(o, logger),
		engine.WithLogger(logger),
		engine.WithQueryLog(st),
		engine.WithPlanner(planner.New(planner.WithStrategy(s))),
		engine.WithExecutorOptions(engine.WithPageSize(o.PageSize)),
	)
	return eng, reg, nil
}

// prepareCommand is shared by decompose and plan: both prepare a query
// without executing it and print part of the result.
func prepareCommand(rootOpts *RootOptions, use, short string, render func(p *engine.Prepared) string) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:           use + " <federation> <query-file>",
		Short:         short,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			fed := args[0]
			q, err := readQuery(args[1], cmd.InOrStdin())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQueryDoc, "failed to read query", err)
			}
			o, err := federationOptions(rootOpts, fed)
			if err != nil {
				return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load federation options", err)
			}
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			logger := newLogger(rootOpts, cmd)
			eng, _, err := newEngine(st, o, strategy, logger)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQueryDoc, "invalid strategy", err)
			}
			p, err := eng.Prepare(cmd.Context(), fed, q)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeQuery, string(engine.CodeOf(err)), err)
			}
			out := render(p)
			return f.Emit(map[string]string{"federation": fed, use: out}, func(w io.Writer) {
				fmt.Fprint(w, out)
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "join strategy (bushy|left-linear|naive)")
	return cmd
}

// NewDecomposeCommand creates the decompose command.
func NewDecomposeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := prepareCommand(rootOpts, "decompose",
		"Show the star-shaped subqueries and the sources serving them",
		func(p *engine.Prepared) string { return p.Decomposition.Trace() })
	cmd.Long = `Decompose a query against a federation's catalog without executing it.

The output lists every star-shaped subquery with its candidate molecules,
followed by the decomposed query tree with one service per source group.`
	return cmd
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return prepareCommand(rootOpts, "plan",
		"Show the execution plan of a query",
		func(p *engine.Prepared) string {
			out := fmt.Sprintf("strategy %s\n", p.Plan.Strategy)
			return out + planner.Format(p.Plan.Root)
		})
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "query <federation> <query-file>",
		Short: "Answer a query over a federation",
		Long: `Decompose, plan and execute a query over the sources of a federation.

The query file is a YAML or JSON query document; "-" reads it from stdin.
With --format json the result envelope is printed as
{"head":{"vars":[...]},"cardinality":n,"results":{"bindings":[...]},...}.
Every query is recorded in the store's query log.

Example:
  fedquery query lslod drugs.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			fed := args[0]
			q, err := readQuery(args[1], cmd.InOrStdin())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQueryDoc, "failed to read query", err)
			}
			o, err := federationOptions(rootOpts, fed)
			if err != nil {
				return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load federation options", err)
			}
			st, err := openStore(rootOpts, f)
			if err != nil {
				return err
			}
			defer st.Close()

			logger := newLogger(rootOpts, cmd)
			eng, _, err := newEngine(st, o, strategy, logger)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeQueryDoc, "invalid strategy", err)
			}
			env, err := eng.Query(cmd.Context(), fed, q)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeQuery, string(engine.CodeOf(err)), err)
			}
			for _, sf := range env.Failures {
				f.VerboseLog("source %s failed after %d answers: %s", sf.Endpoint, sf.Answers, sf.Error)
			}
			return f.Emit(env, func(w io.Writer) { writeBindings(w, env) })
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "join strategy (bushy|left-linear|naive)")
	cmd.AddCommand(newQueryLogCommand(rootOpts))
	return cmd
}

// writeBindings prints one tab-separated line per solution.
func writeBindings(w io.Writer, env *engine.Envelope) {
	vars := env.Vars
	if len(vars) == 0 {
		seen := map[string]bool{}
		for _, b := range env.Bindings {
			for _, v := range b.Vars() {
				if !seen[v] {
					seen[v] = true
					vars = append(vars, v)
				}
			}
		}
		sort.Strings(vars)
	}
	header := make([]string, len(vars))
	for i, v := range vars {
		header[i] = "?" + v
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, b := range env.Bindings {
		row := make([]string, len(vars))
		for i, v := range vars {
			if val, ok := b[v]; ok {
				row[i] = val.Term().String()
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	fmt.Fprintf(w, "%d solution(s) in %s", len(env.Bindings), env.ExecutionTime)
	if n := len(env.Failures); n > 0 {
		fmt.Fprintf(w, ", %d source(s) failed", n)
	}
	fmt.Fprintln(w)
}

// QueryLogEntry is the JSON form of a query record.
type QueryLogEntry struct {
	ID          string  `json:"id"`
	Query       string  `json:"query"`
	Status      string  `json:"status"`
	Cardinality int     `json:"cardinality"`
	FirstResult float64 `json:"first_result"`
	LastResult  float64 `json:"last_result"`
	Total       float64 `json:"total"`
	Error       string  `json:"error,omitempty"`
}

func newQueryLogCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:           "log <federation>",
		Short:         "Show the most recent queries of a federation",
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

			recs, err := st.ReadQueries(cmd.Context(), args[0], limit)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "failed to read query log", err)
			}
			entries := make([]QueryLogEntry, 0, len(recs))
			for _, r := range recs {
				entries = append(entries, QueryLogEntry{
					ID:          r.ID,
					Query:       r.Query,
					Status:      r.Status,
					Cardinality: r.Cardinality,
					FirstResult: r.FirstResult.Seconds(),
					LastResult:  r.LastResult.Seconds(),
					Total:       r.Total.Seconds(),
					Error:       r.Error,
				})
			}
			return f.Emit(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No queries recorded.")
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%d\t%.3fs\n", e.ID, e.Status, e.Cardinality, e.Total)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of records (0 for all)")
	return cmd
}
