package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/calderwm/gridflow/internal/record"
	"github.com/calderwm/gridflow/internal/store"
	"github.com/calderwm/gridflow/internal/template"
	"github.com/calderwm/gridflow/internal/workflow"
)

// SubmitSummary is the payload reported by the submit command.
type SubmitSummary struct {
	Submission int                `json:"submission"`
	Jobscripts []record.Jobscript `json:"jobscripts"`
}

func (s SubmitSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "submission %d: %d jobscript(s)", s.Submission, len(s.Jobscripts))
	for _, js := range s.Jobscripts {
		fmt.Fprintf(&b, "\n  jobscript %d: %d element(s)", js.Index, len(js.Elements))
		if js.Resources.NumCores > 0 {
			fmt.Fprintf(&b, ", %d core(s)", js.Resources.NumCores)
		}
		if js.Resources.Scheduler != "" {
			fmt.Fprintf(&b, ", scheduler %s", js.Resources.Scheduler)
		}
		if len(js.DependsOn) > 0 {
			fmt.Fprintf(&b, ", depends on %v", js.DependsOn)
		}
	}
	return b.String()
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <workflow-dir>",
		Short: "Compile pending runs into a submission",
		Long: `Compile a workflow's pending runs into jobscripts and record them
as a new submission.

Runs covered by the submission are marked with its index, so a repeated
submit only picks up runs added or un-skipped since.

Example:
  gridflow submit ./campaigns/sweep`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSubmit(opts *RootOptions, dir string, cmd *cobra.Command) error {
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

	tpl, err := storedTemplate(ctx, st)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeTemplate, "failed to load stored template", err)
	}

	sub, err := workflow.Submit(ctx, st, tpl)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to build submission", err)
	}
	if err := st.Save(ctx); err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to save workflow", err)
	}

	logger.Info("submission saved", "index", sub.Index, "jobscripts", len(sub.Jobscripts))
	return formatter.Success(SubmitSummary{
		Submission: sub.Index,
		Jobscripts: sub.Jobscripts,
	})
}

// storedTemplate re-inflates the template document persisted with the
// workflow.
func storedTemplate(ctx context.Context, st *store.Store) (*template.Template, error) {
	doc, err := st.GetTemplate(ctx)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return template.Load(data)
}
