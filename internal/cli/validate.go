package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fedquery/internal/config"
	"github.com/roach88/fedquery/internal/queryir"
)

// ValidationReport is the result of the validate command.
type ValidationReport struct {
	Valid       bool              `json:"valid"`
	Files       int               `json:"files"`
	Federations []string          `json:"federations"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var queries []string
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Check federation definitions and query documents",
		Long: `Compile every federation declared in a directory of CUE definitions and
report all problems found, without touching the metadata store.

Query documents given with --query are parsed and checked as well.

Example:
  fedquery validate ./federations --query drugs.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			res, errs := config.Load(args[0], config.LoadModeCollectAll)
			if res == nil {
				return reportLoadErrors(f, errs)
			}

			report := ValidationReport{Files: res.FileCount, Federations: []string{}}
			for _, fed := range res.Federations {
				report.Federations = append(report.Federations, fed.ID)
			}
			for _, err := range errs {
				report.Errors = append(report.Errors, issueOf(err))
			}
			for _, path := range queries {
				q, err := readQuery(path, cmd.InOrStdin())
				if err != nil {
					report.Errors = append(report.Errors, ValidationIssue{Code: ErrCodeQueryDoc, Message: err.Error(), File: path})
					continue
				}
				vr := queryir.Validate(q)
				for _, ve := range vr.Errors {
					report.Errors = append(report.Errors, ValidationIssue{Code: ve.Code, Message: ve.Field + ": " + ve.Message, File: path})
				}
				for _, w := range vr.Warnings {
					report.Warnings = append(report.Warnings, path+": "+w)
				}
			}
			report.Valid = len(report.Errors) == 0

			if f.Format == "json" {
				resp := CLIResponse{Status: "ok", Data: report}
				if !report.Valid {
					resp.Status = "error"
					resp.Error = &CLIError{Code: report.Errors[0].Code, Message: fmt.Sprintf("%d validation error(s)", len(report.Errors))}
				}
				if err := json.NewEncoder(f.Writer).Encode(resp); err != nil {
					return err
				}
			} else {
				writeReport(f.Writer, report)
			}
			if !report.Valid {
				return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(report.Errors)))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&queries, "query", nil, "query document to check (repeatable)")
	return cmd
}

func issueOf(err error) ValidationIssue {
	var le *config.LoadError
	if !errors.As(err, &le) {
		return ValidationIssue{Code: config.ErrCodeGeneric, Message: err.Error()}
	}
	issue := ValidationIssue{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		issue.File = le.Pos.Filename()
		issue.Line = le.Pos.Line()
	}
	return issue
}

func writeReport(w io.Writer, r ValidationReport) {
	for _, e := range r.Errors {
		switch {
		case e.Line > 0:
			fmt.Fprintf(w, "✗ %s:%d: [%s] %s\n", e.File, e.Line, e.Code, e.Message)
		case e.File != "":
			fmt.Fprintf(w, "✗ %s: [%s] %s\n", e.File, e.Code, e.Message)
		default:
			fmt.Fprintf(w, "✗ [%s] %s\n", e.Code, e.Message)
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "! %s\n", warn)
	}
	if r.Valid {
		fmt.Fprintf(w, "✓ %d file(s), %d federation(s) valid\n", r.Files, len(r.Federations))
	} else {
		fmt.Fprintf(w, "%d error(s) in %d file(s)\n", len(r.Errors), r.Files)
	}
}
