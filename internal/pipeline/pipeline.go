package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/ghprofile/internal/model"
)

// ErrHalt is wrapped by step errors that must stop the run whatever the
// error policy is: a failed connectivity gate or a cancelled run.
var ErrHalt = errors.New("run halted")

// Step defines the interface that all pipeline steps must implement.
// Each step records exactly one outcome in the report.
type Step interface {
	// Do executes the step. It returns nil when the recorded outcome is a
	// success or must not influence the run (identity check, rotation).
	Do(ctx context.Context, report *model.RunReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// StepError carries the failed outcome of a step.
type StepError struct {
	Outcome model.Outcome
}

// Error implements error.
func (e *StepError) Error() string {
	return e.Outcome.String()
}

// Pipeline runs steps in sequence.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finalSteps run after steps unless the run halted.
	finalSteps []Step

	logger *slog.Logger

	// continueOnError selects "attempt every step and aggregate" (true)
	// over "stop at the first failed step" (false).
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures whether the remaining steps still run
// after a step fails. A halting failure always stops the run.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty pipeline. The default policy is to continue after
// a failed step.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: true,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalStep appends a step that runs after all regular steps, even when
// some of them failed, but never after a halt.
func (p *Pipeline) AddFinalStep(step Step) {
	p.finalSteps = append(p.finalSteps, step)
}

// Execute runs all steps in sequence and returns the first step error.
// The context is checked before each step; a cancelled run records a
// Cancelled outcome for the step it did not start.
func (p *Pipeline) Execute(ctx context.Context, report *model.RunReport) error {
	var firstErr error

	for _, step := range p.steps {
		if err := p.runStep(ctx, step, report); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, ErrHalt) {
				return firstErr
			}
			if !p.continueOnError {
				break
			}
		}
	}

	for _, step := range p.finalSteps {
		if err := p.runStep(ctx, step, report); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, ErrHalt) {
				return firstErr
			}
		}
	}

	return firstErr
}

func (p *Pipeline) runStep(ctx context.Context, step Step, report *model.RunReport) error {
	if err := ctx.Err(); err != nil {
		p.logger.Warn("pipeline cancelled",
			"step", step.Name(),
			"reason", err,
		)
		report.Record(model.Failure(model.StepName(step.Name()), model.FailureCancelled, "", err))
		return errors.Join(ErrHalt, err)
	}

	p.logger.Debug("executing step",
		"step", step.Name(),
		"username", report.Username,
	)

	if err := step.Do(ctx, report); err != nil {
		p.logger.Debug("step failed",
			"step", step.Name(),
			"error", err,
		)
		return err
	}

	p.logger.Debug("step completed", "step", step.Name())
	return nil
}

// StepCount returns the number of steps, final steps included.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.finalSteps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalSteps {
		names = append(names, step.Name())
	}
	return names
}
