package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aristath/toolbelt/internal/persistence"
	"github.com/aristath/toolbelt/internal/toolerr"
)

const historySource = "toolbelt:history"

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs, or the tasks of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return toolerr.New("Could not open run history.", toolerr.NameGeneric, historySource, toolerr.WithCause(err))
			}
			defer store.Close()

			if len(args) == 1 {
				return a.showRun(ctx, store, args[0])
			}
			return a.listRuns(ctx, store, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")
	return cmd
}

func (a *app) listRuns(ctx context.Context, store persistence.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return toolerr.New("Could not list runs.", toolerr.NameGeneric, historySource, toolerr.WithCause(err))
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Name,
			r.Status,
			strconv.Itoa(r.TaskCount),
			r.StartedAt.Local().Format(time.DateTime),
			runDuration(r),
		})
	}
	fmt.Fprintln(a.stdout, renderTable([]string{"RUN", "NAME", "STATUS", "TASKS", "STARTED", "DURATION"}, rows))
	return nil
}

func (a *app) showRun(ctx context.Context, store persistence.Store, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return toolerr.New(fmt.Sprintf("Run %s not found.", runID), toolerr.NameGeneric, historySource,
			toolerr.WithCause(err),
			toolerr.WithActions("Run `toolbelt history` to list recorded runs."))
	}
	tasks, err := store.ListTaskRuns(ctx, runID)
	if err != nil {
		return toolerr.New("Could not list task runs.", toolerr.NameGeneric, historySource, toolerr.WithCause(err))
	}

	fmt.Fprintf(a.stdout, "%s %s %s (%s)\n", run.ID, run.Name, run.Status, runDuration(*run))
	if run.Error != "" {
		fmt.Fprintf(a.stdout, "error: %s\n", run.Error)
	}

	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			strconv.Itoa(t.Seq),
			t.Title,
			t.Status,
			strconv.Itoa(t.ExitCode),
			strconv.Itoa(t.Attempts),
			t.Duration.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintln(a.stdout, renderTable([]string{"#", "TASK", "STATUS", "EXIT", "ATTEMPTS", "DURATION"}, rows))
	return nil
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

func runDuration(r persistence.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
