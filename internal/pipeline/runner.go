package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StepState represents the state of an individual step
type StepState string

const (
	StepStatePending   StepState = "pending"
	StepStateRunning   StepState = "running"
	StepStateCompleted StepState = "completed"
	StepStateFailed    StepState = "failed"
	StepStateSkipped   StepState = "skipped"
)

// Step is one stage of a run. Execute reads and fills the shared state.
type Step[S any] interface {
	Name() string
	Execute(ctx context.Context, state *S) error
}

// StepExecution records how a step went
type StepExecution struct {
	Name        string
	State       StepState
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// Duration returns how long the step ran
func (e StepExecution) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.CompletedAt.IsZero() {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Run is the record of one runner invocation
type Run struct {
	ID    string
	Steps []StepExecution
}

// Runner executes steps strictly in order on the caller's goroutine and
// stops at the first failure. Later steps are marked skipped.
type Runner[S any] struct {
	name   string
	steps  []Step[S]
	logger *zap.Logger
}

// NewRunner creates a runner over steps
func NewRunner[S any](name string, logger *zap.Logger, steps ...Step[S]) *Runner[S] {
	return &Runner[S]{name: name, steps: steps, logger: logger}
}

// Execute runs every step against state
func (r *Runner[S]) Execute(ctx context.Context, state *S) (Run, error) {
	run := Run{
		ID:    fmt.Sprintf("%s_%d", r.name, time.Now().UnixNano()),
		Steps: make([]StepExecution, len(r.steps)),
	}
	for i, step := range r.steps {
		run.Steps[i] = StepExecution{Name: step.Name(), State: StepStatePending}
	}

	for i, step := range r.steps {
		if err := ctx.Err(); err != nil {
			r.skipFrom(&run, i)
			return run, err
		}

		exec := &run.Steps[i]
		exec.State = StepStateRunning
		exec.StartedAt = time.Now()

		err := step.Execute(ctx, state)
		exec.CompletedAt = time.Now()

		if err != nil {
			exec.State = StepStateFailed
			exec.Error = err.Error()
			r.skipFrom(&run, i+1)

			r.logger.Error("Step failed",
				zap.String("runID", run.ID),
				zap.String("step", step.Name()),
				zap.Duration("duration", exec.Duration()),
				zap.Error(err))
			return run, err
		}

		exec.State = StepStateCompleted
		r.logger.Debug("Step completed",
			zap.String("runID", run.ID),
			zap.String("step", step.Name()),
			zap.Duration("duration", exec.Duration()))
	}

	return run, nil
}

func (r *Runner[S]) skipFrom(run *Run, from int) {
	for i := from; i < len(run.Steps); i++ {
		run.Steps[i].State = StepStateSkipped
	}
}
