package cli

import (
	"context"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/koppla/internal/model"
)

// PullOptions holds flags for the pull command.
type PullOptions struct {
	*RootOptions
	Relations bool
}

// PullSummary is what pull reports about a loaded project.
type PullSummary struct {
	Nodes     int              `json:"nodes"`
	Edges     int              `json:"edges"`
	NodeTypes int              `json:"node_types"`
	EdgeTypes int              `json:"edge_types"`
	ByType    map[string]int   `json:"by_type"`
	Relations []model.Relation `json:"relations,omitempty"`
}

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PullOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Load the project and print a summary",
		Long: `Load types, nodes and edges from the configured backend and print what
was loaded. Staged operations left by an earlier session are replayed first.

Examples:
  koppla pull -c koppla.yaml
  koppla pull -c koppla.yaml --relations --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Relations, "relations", false, "list every edge as type and endpoint metadata")

	return cmd
}

func runPull(ctx context.Context, opts *PullOptions, cmd *cobra.Command) (err error) {
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

	if err := s.init(ctx); err != nil {
		return out.Report(err)
	}

	nodes := s.editor.GetNodes()
	summary := PullSummary{
		Nodes:     len(nodes),
		Edges:     len(s.editor.GetEdges()),
		NodeTypes: len(s.store.NodeTypes()),
		EdgeTypes: len(s.store.EdgeTypes()),
		ByType:    make(map[string]int),
	}
	for _, n := range nodes {
		summary.ByType[string(n.Type)]++
	}
	if opts.Relations {
		rels, err := s.editor.Relations()
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeLoad, err)
		}
		summary.Relations = rels
	}

	if opts.Format == "json" {
		return out.Success(summary)
	}
	printPullSummary(out, summary)
	return nil
}

func printPullSummary(out *OutputFormatter, s PullSummary) {
	out.Textf("Nodes: %d", s.Nodes)
	for _, typ := range slices.Sorted(maps.Keys(s.ByType)) {
		name := typ
		if name == "" {
			name = "(untyped)"
		}
		out.Textf("  %s: %d", name, s.ByType[typ])
	}
	out.Textf("Edges: %d", s.Edges)
	out.Textf("Types: %d node, %d edge", s.NodeTypes, s.EdgeTypes)
	if len(s.Relations) > 0 {
		out.Textf("Relations:")
		for _, r := range s.Relations {
			out.Textf("  %s -[%s]-> %s", r.FromMetadata, r.EdgeTypeMetadata, r.ToMetadata)
		}
	}
}
