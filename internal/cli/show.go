package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/calderwm/gridflow/internal/store"
)

// Entity kinds accepted by the show command.
var showKinds = []string{"task", "element", "iteration", "run", "parameter", "loop", "submission"}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <workflow-dir> <kind> <id>",
		Short: "Show one workflow entity",
		Long: `Show one workflow entity as a JSON document.

Kinds: task, element, iteration, run, parameter, loop, submission.

Example:
  gridflow show ./campaigns/sweep run 3
  gridflow show ./campaigns/sweep parameter 0 --format json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], args[1], args[2], cmd)
		},
	}

	return cmd
}

func runShow(opts *RootOptions, dir, kind, rawID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := strconv.Atoi(rawID)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, fmt.Sprintf("invalid entity ID %q", rawID), err)
	}
	if !slices.Contains(showKinds, kind) {
		return fail(formatter, ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("unknown entity kind %q (want one of %v)", kind, showKinds), nil)
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

	entity, err := fetchEntity(ctx, st, kind, id)
	if err != nil {
		if store.IsUnknownID(err) {
			return fail(formatter, ExitCommandError, ErrCodeNotFound,
				fmt.Sprintf("%s %d not found", kind, id), err)
		}
		return fail(formatter, ExitFailure, ErrCodeWorkflow, "failed to read workflow", err)
	}

	if opts.Format == "json" {
		return formatter.Success(entity)
	}
	pretty, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeGeneric, "failed to encode entity", err)
	}
	return formatter.Success(string(pretty))
}

func fetchEntity(ctx context.Context, st *store.Store, kind string, id int) (any, error) {
	switch kind {
	case "task":
		tasks, err := st.GetTasksByID(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		return tasks[0], nil
	case "element":
		elems, err := st.GetElements(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		return elems[0], nil
	case "iteration":
		iters, err := st.GetElementIterations(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		return iters[0], nil
	case "run":
		runs, err := st.GetRuns(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		return runs[0], nil
	case "parameter":
		params, err := st.GetParameters(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		return params[0], nil
	case "loop":
		loops, err := st.GetLoopsByID(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		return loops[0], nil
	case "submission":
		subs, err := st.GetSubmissionsByID(ctx, []int{id})
		if err != nil {
			return nil, err
		}
		return subs[0], nil
	}
	return nil, fmt.Errorf("unknown entity kind %q (want one of %v)", kind, showKinds)
}
