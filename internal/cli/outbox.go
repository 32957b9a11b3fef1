package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/koppla/internal/outbox"
)

// OutboxOptions holds flags for the outbox command.
type OutboxOptions struct {
	*RootOptions
	Replay bool
}

// OutboxResult lists staged operations.
type OutboxResult struct {
	Replayed bool           `json:"replayed,omitempty"`
	Pending  []outbox.Entry `json:"pending"`
}

// NewOutboxCommand creates the outbox command.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OutboxOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "List or replay staged operations",
		Long: `List operations staged in the outbox that the backend never acknowledged.
With --replay they are submitted again; whatever still fails stays staged.

The config must set outbox.path.

Exit codes:
  0 - Outbox listed, or replay left nothing behind
  1 - Replay left entries staged
  2 - Command error (no outbox configured, unreadable database)

Examples:
  koppla outbox -c koppla.yaml
  koppla outbox -c koppla.yaml --replay`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutbox(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Replay, "replay", false, "submit staged operations to the backend")

	return cmd
}

func runOutbox(ctx context.Context, opts *OutboxOptions, cmd *cobra.Command) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return out.Report(err)
	}
	defer func() {
		if cerr := s.close(ctx); cerr != nil && err == nil {
			err = out.Fail(ExitFailure, ErrCodeSync, cerr)
		}
	}()
	if s.cfg.Outbox.Path == "" {
		return out.Fail(ExitCommandError, ErrCodeConfig, errors.New("no outbox configured: set outbox.path"))
	}

	result := OutboxResult{Replayed: opts.Replay}
	var replayErr error
	if opts.Replay {
		replayErr = s.store.Recover(ctx)
		if replayErr != nil {
			s.logger.Warn("replay incomplete", "error", replayErr)
		}
	}

	pending, err := s.outbox.Pending(ctx)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeBackend, err)
	}
	result.Pending = pending
	if result.Pending == nil {
		result.Pending = []outbox.Entry{}
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		printOutbox(out, result)
	}

	if opts.Replay && len(pending) > 0 {
		msg := "replay left operations staged"
		if replayErr != nil {
			return WrapExitError(ExitFailure, msg, replayErr)
		}
		return NewExitError(ExitFailure, msg)
	}
	return nil
}

func printOutbox(out *OutputFormatter, r OutboxResult) {
	if r.Replayed {
		out.Textf("Replayed staged operations.")
	}
	if len(r.Pending) == 0 {
		out.Textf("✓ Outbox is empty")
		return
	}
	out.Textf("%d staged operation(s):", len(r.Pending))
	for _, e := range r.Pending {
		out.Textf("  #%d %s %s %s (attempts: %d)", e.Seq, e.Kind, e.Op, e.Key, e.Attempts)
	}
}
