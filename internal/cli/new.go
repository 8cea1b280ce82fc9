package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/calderwm/gridflow/internal/store"
	"github.com/calderwm/gridflow/internal/template"
	"github.com/calderwm/gridflow/internal/workflow"
)

// NewOptions holds flags for the new command.
type NewOptions struct {
	*RootOptions
	Dir     string
	Backend string
}

// NewSummary is the payload reported after workflow creation.
type NewSummary struct {
	Workflow string `json:"workflow"`
	Path     string `json:"path"`
	Backend  string `json:"backend"`
	Tasks    int    `json:"tasks"`
	Elements int    `json:"elements"`
	Runs     int    `json:"runs"`
}

func (s NewSummary) String() string {
	return fmt.Sprintf("created workflow %q at %s [%s]: %d tasks, %d elements, %d runs",
		s.Workflow, s.Path, s.Backend, s.Tasks, s.Elements, s.Runs)
}

// NewNewCommand creates the new command.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "new <template.yaml>",
		Short: "Create a workflow from a template",
		Long: `Create a persistent workflow from a YAML template.

The template is validated, its tasks are expanded into elements, and every
element's iterations and action runs are staged and saved.

Example:
  gridflow new sweep.yaml --dir ./campaigns
  gridflow new sweep.yaml --store sqlite`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", ".", "directory to create the workflow in")
	cmd.Flags().StringVar(&opts.Backend, "store", "json", "persistence encoding (json|sqlite)")

	return cmd
}

func runNew(opts *NewOptions, templatePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tpl, err := template.LoadFile(templatePath)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeTemplate, "failed to load template", err)
	}
	doc, err := tpl.Doc()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeTemplate, "failed to encode template", err)
	}

	logger.Info("creating workflow", "name", tpl.Name, "dir", opts.Dir, "backend", opts.Backend)
	st, err := store.Create(ctx, store.CreateOptions{
		Path:     opts.Dir,
		Name:     tpl.Name,
		Backend:  opts.Backend,
		Template: doc,
	}, logger)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeWorkflow, "failed to create workflow", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing workflow", "error", closeErr)
		}
	}()

	if err := workflow.Build(ctx, st, tpl, doc); err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to build workflow", err)
	}
	if err := st.Save(ctx); err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to save workflow", err)
	}

	summary := NewSummary{
		Workflow: tpl.Name,
		Path:     filepath.Join(opts.Dir, tpl.Name),
		Backend:  opts.Backend,
	}
	if summary.Tasks, err = st.NumTasks(ctx); err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to read workflow", err)
	}
	if summary.Elements, err = st.NumElements(ctx); err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to read workflow", err)
	}
	if summary.Runs, err = st.NumRuns(ctx); err != nil {
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to read workflow", err)
	}

	logger.Info("workflow created", "path", summary.Path, "tasks", summary.Tasks, "runs", summary.Runs)
	return formatter.Success(summary)
}
