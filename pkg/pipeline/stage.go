package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Guard decides whether a stage or chain runs for the given subject.
// Guards are evaluated on every traversal and must not mutate the subject.
type Guard[T any] func(subject T) bool

// Stage is a node of a processor tree.
type Stage[T any] interface {
	// Execute runs the node against subject.
	// A returned error is one that no failure handler absorbed.
	Execute(ctx context.Context, subject T) error

	// Name returns the node title used in stats, metrics and logs.
	Name() string
}

// StageError is returned when a stage body fails and the stage has no Except handler.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Worker is a leaf stage: a guarded body with an optional failure handler.
type Worker[T any] struct {
	Title       string
	Description string

	// On gates the worker. Nil means always.
	On Guard[T]

	// Handle is the body. It must not retain subject after returning.
	Handle func(ctx context.Context, subject T) error

	// Except absorbs a Handle error. It is expected to fail the subject
	// and record a structured error carrying the cause.
	Except func(ctx context.Context, subject T, err error)
}

// Name returns the worker title.
func (w *Worker[T]) Name() string {
	return w.Title
}

// Execute implements Stage.
func (w *Worker[T]) Execute(ctx context.Context, subject T) error {
	if w.On != nil && !w.On(subject) {
		return nil
	}
	if w.Handle == nil {
		return nil
	}

	obs := observerFrom(ctx)
	obs.stageStart(w.Title)
	start := time.Now()

	err := w.Handle(ctx, subject)
	obs.stageDone(w.Title, start, err)

	if err == nil {
		return nil
	}
	if w.Except != nil {
		w.Except(ctx, subject, err)
		return nil
	}
	return &StageError{Stage: w.Title, Err: err}
}

// Chain is a guarded, ordered group of stages sharing one subject.
type Chain[T any] struct {
	Title       string
	Description string

	// On gates the whole chain. Nil means always.
	On Guard[T]

	Stages []Stage[T]
}

// Name returns the chain title.
func (c *Chain[T]) Name() string {
	return c.Title
}

// Execute runs each child in declaration order. Every child checks its own
// guard, so earlier children can switch later ones off.
func (c *Chain[T]) Execute(ctx context.Context, subject T) error {
	if c.On != nil && !c.On(subject) {
		return nil
	}
	for _, stage := range c.Stages {
		if err := stage.Execute(ctx, subject); err != nil {
			return err
		}
	}
	return nil
}

// All combines guards with logical AND. Nil guards are ignored.
func All[T any](guards ...Guard[T]) Guard[T] {
	return func(subject T) bool {
		for _, g := range guards {
			if g != nil && !g(subject) {
				return false
			}
		}
		return true
	}
}
