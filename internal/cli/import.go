package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/koppla/internal/csvimport"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	RulesPath string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <csv-file>",
		Short: "Bulk-load nodes and edges from a CSV file",
		Long: `Create nodes and edges from CSV rows as described by a YAML rules file.

Cells may hold several values separated by ';'. Nodes are placed on a grid,
created and flushed before their edges are connected.

Examples:
  koppla import users.csv --rules rules.yaml -c koppla.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RulesPath, "rules", "", "YAML rules file (required)")
	_ = cmd.MarkFlagRequired("rules")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, csvPath string, cmd *cobra.Command) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	rules, err := csvimport.LoadRules(opts.RulesPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInput, err)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInput, fmt.Errorf("open csv: %w", err))
	}
	ds, err := csvimport.Read(f)
	f.Close()
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInput, err)
	}

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return out.Report(err)
	}
	defer func() {
		if cerr := s.close(ctx); cerr != nil && err == nil {
			err = out.Fail(ExitFailure, ErrCodeSync, cerr)
		}
	}()
	if err := s.init(ctx); err != nil {
		return out.Report(err)
	}

	res, err := csvimport.Write(ctx, s.editor, ds, rules, s.logger)
	if err != nil {
		code := ErrCodeInput
		var se interface{ Unwrap() []error }
		if errors.As(err, &se) {
			// Joined flush failures; the records stay queued.
			code = ErrCodeSync
		}
		return out.Fail(ExitFailure, code, err)
	}

	if opts.Format == "json" {
		return out.Success(res)
	}
	out.Textf("✓ imported %d node(s), %d edge(s), skipped %d", res.Nodes, res.Edges, res.Skipped)
	return nil
}
