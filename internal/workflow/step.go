package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memohai/lexdesk/internal/retry"
)

// Retryable marks a step error as transient; the step is attempted again
// with backoff.
func Retryable(err error) error { return retry.Retryable(err) }

// Fatal marks a step error as terminal. Unmarked errors are terminal too
// unless they wrap a Retryable error.
func Fatal(err error) error { return retry.Permanent(err) }

// StepError reports the step that ended a run.
type StepError struct {
	Step      string
	Retryable bool
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// step is one named unit of the interpreter. Reaches is the state entered
// when Run succeeds; empty means the state is unchanged.
type step struct {
	Name    string
	Reaches State
	Run     func(ctx context.Context, s *runState) error
}

// interpreter executes steps in order, each under its own retrier.
type interpreter struct {
	policy retry.Policy
	logger *slog.Logger
}

func (in interpreter) run(ctx context.Context, s *runState, steps []step) error {
	for _, st := range steps {
		err := retry.Do(ctx, in.policy, in.logger, st.Name, func(ctx context.Context) error {
			return st.Run(ctx, s)
		})
		if err != nil {
			return &StepError{Step: st.Name, Retryable: retry.IsRetryable(err), Err: err}
		}
		if st.Reaches != "" {
			s.transition(st.Reaches)
		}
	}
	return nil
}
