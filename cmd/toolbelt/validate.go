package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/toolbelt/internal/scheduler"
	"github.com/aristath/toolbelt/internal/workflow"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>...",
		Short: "Check workflow files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			retry, err := retryDefaults(a.cfg.Retry)
			if err != nil {
				return err
			}
			for _, path := range args {
				wf, err := workflow.Load(path)
				if err != nil {
					return err
				}
				units, err := wf.Build(retry)
				if err != nil {
					return err
				}
				stages, err := scheduler.Plan(units)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s: %s, %d tasks in %d stages\n", path, wf.Name, len(units), len(stages))
			}
			return nil
		},
	}
}
