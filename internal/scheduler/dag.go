package scheduler

import (
	"fmt"

	"github.com/aristath/toolbelt/internal/toolerr"
)

// Stage is a group of units that start together. A sequential stage holds
// exactly one unit; a concurrent stage holds a run of consecutive
// concurrent units.
type Stage struct {
	Index      int
	Concurrent bool
	Units      []Unit
	// Seqs holds the 0-based registration position of each unit in Units.
	// The same unit value may appear at several positions.
	Seqs []int
}

// Plan groups units, in registration order, into stages. Each
// non-concurrent unit is a join point: it waits for everything registered
// before it and blocks everything registered after it.
func Plan(units []Unit) ([]Stage, error) {
	var stages []Stage
	for i, u := range units {
		if u == nil {
			return nil, toolerr.NewValidationError(
				fmt.Sprintf("Expected unit %d to be a task but got null.", i),
				"scheduler:Plan",
				toolerr.ValidationDetail{Argument: fmt.Sprintf("units[%d]", i), Expected: "a task", Received: "null"},
			)
		}
		// Consecutive concurrent units share the open stage.
		if u.Concurrent() && len(stages) > 0 && stages[len(stages)-1].Concurrent {
			last := &stages[len(stages)-1]
			last.Units = append(last.Units, u)
			last.Seqs = append(last.Seqs, i)
			continue
		}
		stages = append(stages, Stage{
			Index:      len(stages),
			Concurrent: u.Concurrent(),
			Units:      []Unit{u},
			Seqs:       []int{i},
		})
	}
	return stages, nil
}

// Seq returns the registration position of the i-th unit of s. Stages
// built by hand without Seqs number their units from 0.
func (s Stage) Seq(i int) int {
	if i < len(s.Seqs) {
		return s.Seqs[i]
	}
	return i
}

// Titles lists the titles of the units in s.
func (s Stage) Titles() []string {
	titles := make([]string, len(s.Units))
	for i, u := range s.Units {
		titles[i] = u.Title()
	}
	return titles
}
