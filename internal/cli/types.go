package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/koppla/internal/compiler"
	"github.com/roach88/koppla/internal/config"
)

// TypesOptions holds flags for the types command.
type TypesOptions struct {
	*RootOptions
	Seed bool
}

// TypesResult reports the compiled types.
type TypesResult struct {
	Valid     bool                       `json:"valid"`
	FileCount int                        `json:"file_count"`
	NodeTypes []string                   `json:"node_types"`
	EdgeTypes []string                   `json:"edge_types"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
	Seeded    bool                       `json:"seeded,omitempty"`
}

// NewTypesCommand creates the types command.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TypesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "types <dir>",
		Short: "Compile and validate CUE type definitions",
		Long: `Compile the node_type and edge_type definitions of a CUE package and
validate their styles. With --seed the types are written to the local
SQLite project named in the config.

Exit codes:
  0 - Types are valid
  1 - Validation failed
  2 - Command error (missing directory, CUE errors, wrong backend)

Examples:
  koppla types ./types
  koppla types ./types --seed -c koppla.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "write the types to the local project")

	return cmd
}

func runTypes(ctx context.Context, opts *TypesOptions, dir string, cmd *cobra.Command) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	res, loadErrs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(loadErrs) > 0 {
		return out.Fail(ExitCommandError, ErrCodeInput, errors.Join(loadErrs...))
	}

	result := TypesResult{
		FileCount: res.FileCount,
		NodeTypes: make([]string, len(res.NodeTypes)),
		EdgeTypes: make([]string, len(res.EdgeTypes)),
		Errors:    compiler.Validate(res),
	}
	for i, t := range res.NodeTypes {
		result.NodeTypes[i] = string(t.ID)
	}
	for i, t := range res.EdgeTypes {
		result.EdgeTypes[i] = string(t.ID)
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		if opts.Format == "json" {
			_ = out.Error(ErrCodeInvalid, fmt.Sprintf("%d validation error(s)", len(result.Errors)), result)
		} else {
			out.Textf("✗ %d validation error(s)", len(result.Errors))
			for _, e := range result.Errors {
				out.Textf("  %s", e.Error())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}

	if opts.Seed {
		if err := seedTypes(ctx, opts.RootOptions, res); err != nil {
			return out.Report(err)
		}
		result.Seeded = true
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	out.Textf("✓ %d node type(s), %d edge type(s) from %d file(s)", len(result.NodeTypes), len(result.EdgeTypes), result.FileCount)
	if result.Seeded {
		out.Textf("✓ seeded local project")
	}
	return nil
}

func seedTypes(ctx context.Context, opts *RootOptions, res *compiler.LoadResult) (err error) {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(ctx); cerr != nil && err == nil {
			err = WrapExitError(ExitFailure, ErrCodeSync, cerr)
		}
	}()

	if s.local == nil {
		return WrapExitError(ExitCommandError, ErrCodeConfig,
			fmt.Errorf("--seed needs the %s backend, config selects %s", config.BackendLocal, s.cfg.Backend))
	}
	if err := s.local.Seed(ctx, res.NodeTypes, res.EdgeTypes); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeBackend, err)
	}
	return nil
}
