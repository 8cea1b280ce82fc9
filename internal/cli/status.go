package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calderwm/gridflow/internal/store"
)

// StatusSummary is the payload reported by the status command.
type StatusSummary struct {
	Path        string `json:"path"`
	Workflow    string `json:"workflow"`
	Tasks       int    `json:"tasks"`
	Elements    int    `json:"elements"`
	Iterations  int    `json:"iterations"`
	Runs        int    `json:"runs"`
	Parameters  int    `json:"parameters"`
	Loops       int    `json:"loops"`
	Submissions int    `json:"submissions"`
}

func (s StatusSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow:    %s (%s)\n", s.Workflow, s.Path)
	fmt.Fprintf(&b, "tasks:       %d\n", s.Tasks)
	fmt.Fprintf(&b, "elements:    %d\n", s.Elements)
	fmt.Fprintf(&b, "iterations:  %d\n", s.Iterations)
	fmt.Fprintf(&b, "runs:        %d\n", s.Runs)
	fmt.Fprintf(&b, "parameters:  %d\n", s.Parameters)
	fmt.Fprintf(&b, "loops:       %d\n", s.Loops)
	fmt.Fprintf(&b, "submissions: %d", s.Submissions)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <workflow-dir>",
		Short: "Show entity counts for a workflow",
		Long: `Show entity counts for a persistent workflow.

Example:
  gridflow status ./campaigns/sweep
  gridflow status ./campaigns/sweep --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(ctx, dir, logger)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, "failed to open workflow", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing workflow", "error", closeErr)
		}
	}()

	info, err := st.CreationInfo(ctx)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to read workflow", err)
	}
	summary := StatusSummary{Path: dir, Workflow: info.WorkflowID}

	counts := []struct {
		dst *int
		fn  func(context.Context) (int, error)
	}{
		{&summary.Tasks, st.NumTasks},
		{&summary.Elements, st.NumElements},
		{&summary.Iterations, st.NumIterations},
		{&summary.Runs, st.NumRuns},
		{&summary.Parameters, st.NumParameters},
		{&summary.Loops, st.NumLoops},
		{&summary.Submissions, st.NumSubmissions},
	}
	for _, c := range counts {
		if *c.dst, err = c.fn(ctx); err != nil {
			return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to read workflow", err)
		}
	}

	return formatter.Success(summary)
}
