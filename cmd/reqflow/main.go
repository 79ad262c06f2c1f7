package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"reqflow/internal/workflow"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, formatError(err))
		}
		os.Exit(exitCode(err))
	}
}

func formatError(err error) string {
	switch kind := workflow.Kind(err); kind {
	case workflow.KindInternal:
		return fmt.Sprintf("error: %v", err)
	default:
		return fmt.Sprintf("error (%s): %v", kind, err)
	}
}

// exitCode separates caller mistakes from failures worth retrying.
func exitCode(err error) int {
	switch workflow.Kind(err) {
	case workflow.KindValidation, workflow.KindNotFound:
		return 2
	case workflow.KindInvalidTransition, workflow.KindAlreadyFinalized, workflow.KindAlreadyCompleted,
		workflow.KindNotCompleted, workflow.KindCannotDeleteCompleted, workflow.KindConflict:
		return 3
	default:
		return 1
	}
}
