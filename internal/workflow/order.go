package workflow

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/toolbelt/internal/toolerr"
)

// order returns the indexes of f.Tasks in execution order. Tasks keep
// their file order except that a task is moved after every task it needs.
func (f *File) order() ([]int, error) {
	const source = "workflow:order"

	ids := make(map[string]int, len(f.Tasks))
	for i, t := range f.Tasks {
		if t.ID == "" {
			continue
		}
		if j, dup := ids[t.ID]; dup {
			return nil, toolerr.NewValidationError(
				fmt.Sprintf("Tasks %d and %d share the id %q.", j+1, i+1, t.ID), source,
				toolerr.ValidationDetail{Argument: fmt.Sprintf("tasks[%d].id", i), Expected: "a unique id", Received: t.ID})
		}
		ids[t.ID] = i
	}

	needs := make([][]int, len(f.Tasks))
	var edges []toposort.Edge
	for i, t := range f.Tasks {
		if len(t.Needs) == 0 {
			edges = append(edges, toposort.Edge{nil, i})
			continue
		}
		for _, id := range t.Needs {
			j, ok := ids[id]
			if !ok {
				return nil, toolerr.NewValidationError(
					fmt.Sprintf("Task %q needs unknown task %q.", t.Title, id), source,
					toolerr.ValidationDetail{Argument: fmt.Sprintf("tasks[%d].needs", i), Expected: "the id of another task", Received: id})
			}
			if j == i {
				return nil, toolerr.NewValidationError(
					fmt.Sprintf("Task %q needs itself.", t.Title), source,
					toolerr.ValidationDetail{Argument: fmt.Sprintf("tasks[%d].needs", i), Expected: "the id of another task", Received: id})
			}
			needs[i] = append(needs[i], j)
			edges = append(edges, toposort.Edge{j, i})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		e := toolerr.NewValidationError("Workflow task needs form a cycle.", source,
			toolerr.ValidationDetail{Argument: "tasks[].needs", Expected: "needs without cycles", Received: f.cycleTitles(needs)})
		e.Cause = err
		return nil, e
	}

	// Emit the first task in file order whose needs are all emitted.
	out := make([]int, 0, len(f.Tasks))
	emitted := make([]bool, len(f.Tasks))
	for len(out) < len(f.Tasks) {
		for i := range f.Tasks {
			if emitted[i] || !allEmitted(needs[i], emitted) {
				continue
			}
			emitted[i] = true
			out = append(out, i)
			break
		}
	}

	if err := f.checkConcurrentNeeds(out, needs); err != nil {
		return nil, err
	}
	return out, nil
}

// checkConcurrentNeeds rejects a task that would start together with a
// task it needs.
func (f *File) checkConcurrentNeeds(order []int, needs [][]int) error {
	group := make([]int, len(f.Tasks))
	g := 0
	for pos, i := range order {
		if pos > 0 && !(f.Tasks[i].Concurrent && f.Tasks[order[pos-1]].Concurrent) {
			g++
		}
		group[i] = g
	}
	for i, deps := range needs {
		for _, j := range deps {
			if group[i] == group[j] {
				return toolerr.NewValidationError(
					fmt.Sprintf("Task %q needs %q but both run concurrently in the same stage.", f.Tasks[i].Title, f.Tasks[j].Title),
					"workflow:order",
					toolerr.ValidationDetail{Argument: fmt.Sprintf("tasks[%d].needs", i), Expected: "a task from an earlier stage", Received: f.Tasks[j].ID})
			}
		}
	}
	return nil
}

// cycleTitles lists the titles of tasks that never become ready.
func (f *File) cycleTitles(needs [][]int) string {
	emitted := make([]bool, len(f.Tasks))
	for progress := true; progress; {
		progress = false
		for i := range f.Tasks {
			if !emitted[i] && allEmitted(needs[i], emitted) {
				emitted[i] = true
				progress = true
			}
		}
	}
	var titles []string
	for i, t := range f.Tasks {
		if !emitted[i] {
			titles = append(titles, fmt.Sprintf("%q", t.Title))
		}
	}
	return strings.Join(titles, ", ")
}

func allEmitted(deps []int, emitted []bool) bool {
	for _, j := range deps {
		if !emitted[j] {
			return false
		}
	}
	return true
}
