package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// StatusIs matches subjects in status s.
func StatusIs[T Subject](s Status) Guard[T] {
	return func(subject T) bool {
		return subject.PipelineState().Status == s
	}
}

// ModeIs matches subjects in mode m.
func ModeIs[T Subject](m Mode) Guard[T] {
	return func(subject T) bool {
		return subject.PipelineState().Mode == m
	}
}

// ModeIsNot matches subjects in any mode but m.
func ModeIsNot[T Subject](m Mode) Guard[T] {
	return func(subject T) bool {
		return subject.PipelineState().Mode != m
	}
}

// NoErrors matches subjects with an empty error list.
func NoErrors[T Subject]() Guard[T] {
	return func(subject T) bool {
		return !subject.PipelineState().HasErrors()
	}
}

// InitStage moves a fresh subject from INIT to RUN.
func InitStage[T Subject]() Stage[T] {
	return &Worker[T]{
		Title: "init",
		On:    StatusIs[T](StatusInit),
		Handle: func(_ context.Context, subject T) error {
			subject.PipelineState().Advance(StatusRun)
			return nil
		},
	}
}

// Finisher commits OK when no error was recorded and FAIL otherwise.
func Finisher[T Subject]() Stage[T] {
	return &Worker[T]{
		Title: "finish",
		On:    StatusIs[T](StatusRun),
		Handle: func(_ context.Context, subject T) error {
			state := subject.PipelineState()
			if state.HasErrors() {
				state.Advance(StatusFail)
			} else {
				state.Advance(StatusOK)
			}
			return nil
		},
	}
}

func stubGuard[T Subject](c StubCase) Guard[T] {
	return func(subject T) bool {
		state := subject.PipelineState()
		return state.Status == StatusRun && state.StubCase == c
	}
}

// StubOutcome answers stub case c by filling the response and committing OK.
func StubOutcome[T Subject](c StubCase, fill func(subject T)) Stage[T] {
	return &Worker[T]{
		Title: "stub." + string(c),
		On:    stubGuard[T](c),
		Handle: func(_ context.Context, subject T) error {
			if fill != nil {
				fill(subject)
			}
			subject.PipelineState().Advance(StatusOK)
			return nil
		},
	}
}

// StubFailure answers stub case c with a canned error and commits FAIL.
func StubFailure[T Subject](c StubCase, err Error) Stage[T] {
	return &Worker[T]{
		Title: "stub." + string(c),
		On:    stubGuard[T](c),
		Handle: func(_ context.Context, subject T) error {
			subject.PipelineState().Fail(err)
			return nil
		},
	}
}

// StubNoCase fails a stubbed subject whose stub case no stage handled.
func StubNoCase[T Subject]() Stage[T] {
	return &Worker[T]{
		Title: "stub.no-case",
		On:    StatusIs[T](StatusRun),
		Handle: func(_ context.Context, subject T) error {
			state := subject.PipelineState()
			state.Fail(Error{
				Code:    "unsupported-case",
				Group:   GroupStub,
				Field:   "stubCase",
				Message: fmt.Sprintf("wrong stub case requested: %q", state.StubCase),
			})
			return nil
		},
	}
}

// Normalization derives normalized fields. fn must leave raw request fields untouched.
func Normalization[T Subject](name string, fn func(subject T)) Stage[T] {
	return &Worker[T]{
		Title: "normalize." + name,
		Handle: func(_ context.Context, subject T) error {
			fn(subject)
			return nil
		},
	}
}

// Validation records the error returned by check, if any. It never changes
// the status; the finisher turns a non-empty error list into FAIL.
func Validation[T Subject](name string, check func(subject T) *Error) Stage[T] {
	return &Worker[T]{
		Title: "validate." + name,
		Handle: func(_ context.Context, subject T) error {
			if verr := check(subject); verr != nil {
				subject.PipelineState().AddError(*verr)
			}
			return nil
		},
	}
}

// ValidationError builds a field-scoped validation error.
func ValidationError(code, field, message string) *Error {
	return &Error{
		Code:    code,
		Group:   GroupValidation,
		Field:   field,
		Message: message,
	}
}

// Backend wraps a call to a collaborator. A body error fails the subject
// with a structured error: an Error returned by body is recorded as is,
// anything else becomes an exceptions error naming operation and field.
func Backend[T Subject](operation, field string, body func(ctx context.Context, subject T) error) Stage[T] {
	return &Worker[T]{
		Title:  "run." + operation,
		On:     All(StatusIs[T](StatusRun), NoErrors[T]()),
		Handle: body,
		Except: func(_ context.Context, subject T, err error) {
			subject.PipelineState().Fail(BackendError(operation, field, err))
		},
	}
}

// BackendError converts a collaborator failure into a structured error.
func BackendError(operation, field string, cause error) Error {
	var perr Error
	if errors.As(cause, &perr) {
		return perr
	}
	return Error{
		Code:    "backend",
		Group:   GroupExceptions,
		Field:   field,
		Message: fmt.Sprintf("%s: %v", operation, cause),
		Cause:   cause,
	}
}
