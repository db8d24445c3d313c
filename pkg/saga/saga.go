package saga

import (
	"context"

	"go.uber.org/multierr"
)

// Step undoes one previously completed action.
type Step func(ctx context.Context) error

type entry struct {
	label string
	fn    Step
}

// Compensator accumulates undo steps while a multi-step operation makes
// progress. On failure the caller runs Compensate, which walks the steps in
// reverse order. A Compensator is single-use and not safe for concurrent use.
type Compensator struct {
	entries []entry
	done    bool
}

// New returns an empty compensator.
func New() *Compensator {
	return &Compensator{}
}

// Add registers an undo step for an action that just succeeded.
func (c *Compensator) Add(label string, fn Step) {
	if fn == nil {
		return
	}
	c.entries = append(c.entries, entry{label: label, fn: fn})
}

// Len reports how many undo steps are registered.
func (c *Compensator) Len() int {
	return len(c.entries)
}

// Compensate runs every registered step in reverse order. All steps run even
// when earlier ones fail; the combined error carries every failure.
func (c *Compensator) Compensate(ctx context.Context) error {
	if c.done {
		return nil
	}
	c.done = true

	var errs []error
	for i := len(c.entries) - 1; i >= 0; i-- {
		if err := c.entries[i].fn(ctx); err != nil {
			errs = append(errs, &StepError{Label: c.entries[i].label, Err: err})
		}
	}
	return multierr.Combine(errs...)
}

// StepError wraps a failure from a single undo step with its label.
type StepError struct {
	Label string
	Err   error
}

func (e *StepError) Error() string {
	return "compensate " + e.Label + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}
