package orchestrator

import (
	"sync"

	"github.com/aristath/toolbelt/internal/toolerr"
)

// Session holds at most one TaskRunner. Workflow code asks the session for
// the runner instead of constructing one, so every step of a process
// registers tasks with the same runner.
type Session struct {
	mu     sync.Mutex
	deps   Deps
	runner *TaskRunner
}

// NewSession creates an empty session whose runners use deps.
func NewSession(deps Deps) *Session {
	return &Session{deps: deps}
}

// Instance returns the session's runner, creating one with
// DefaultRunnerOptions if there is none.
func (s *Session) Instance() *TaskRunner {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runner == nil {
		// Default options always validate.
		s.runner, _ = newTaskRunner(DefaultRunnerOptions(), s.deps)
	}
	return s.runner
}

// NewRunner creates the session's runner with opts. It fails if the session
// already holds one.
func (s *Session) NewRunner(opts RunnerOptions) (*TaskRunner, error) {
	const source = "orchestrator:Session.NewRunner"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runner != nil {
		return nil, toolerr.NewValidationError("A task runner already exists. Use Instance to get it or Release it first.", source,
			toolerr.ValidationDetail{Argument: "session", Expected: "no existing task runner", Received: "a task runner in state " + s.runner.State().String()})
	}
	r, err := newTaskRunner(opts, s.deps)
	if err != nil {
		return nil, err
	}
	s.runner = r
	return r, nil
}

// Release empties the session. A running runner keeps running; it is only
// forgotten.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = nil
}

var defaultSession = NewSession(Deps{})

// DefaultSession returns the process-wide session.
func DefaultSession() *Session {
	return defaultSession
}

// GetInstance returns the runner of the process-wide session, creating it
// on first use.
func GetInstance() *TaskRunner {
	return defaultSession.Instance()
}
