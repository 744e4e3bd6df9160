package pipeline

import (
	"fmt"
)

// Status is the lifecycle position of a request inside a processor.
type Status int

const (
	// StatusInit is the status of a freshly constructed context.
	StatusInit Status = iota
	// StatusRun means the init stage accepted the context and branches may act on it.
	StatusRun
	// StatusOK is terminal: the operation finished successfully.
	StatusOK
	// StatusFail is terminal: the operation finished with errors.
	StatusFail
)

var statusNames = map[Status]string{
	StatusInit: "init",
	StatusRun:  "run",
	StatusOK:   "ok",
	StatusFail: "fail",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further stage may change the status.
func (s Status) Terminal() bool {
	return s == StatusOK || s == StatusFail
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown status %q", text)
}

// Mode selects how a request is served.
type Mode int

const (
	// ModeProd runs against the production collaborators.
	ModeProd Mode = iota
	// ModeTest runs against the in-memory, deterministic collaborators.
	ModeTest
	// ModeStub skips validation and execution and answers with a scripted outcome.
	ModeStub
)

var modeNames = map[Mode]string{
	ModeProd: "prod",
	ModeTest: "test",
	ModeStub: "stub",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	name, ok := modeNames[m]
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown mode %d", int(m))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	for mode, name := range modeNames {
		if name == string(text) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown mode %q", text)
}

// StubCase selects a scripted outcome. It only matters when the mode is ModeStub.
type StubCase string

// Stub cases understood by every processor. Domains add their own.
const (
	StubNone         StubCase = ""
	StubSuccess      StubCase = "success"
	StubNotFound     StubCase = "not-found"
	StubBadID        StubCase = "bad-id"
	StubDBError      StubCase = "db-error"
	StubCannotDelete StubCase = "cannot-delete"
)

// Error groups.
const (
	GroupValidation = "validation"
	GroupStub       = "stub"
	GroupExceptions = "exceptions"
	GroupPipeline   = "pipeline"
)

// Error is a structured, field-scoped error recorded on a context.
// Cause stays in-process; Message carries its text across the wire.
type Error struct {
	Code    string `json:"code"`
	Group   string `json:"group"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s/%s [%s]: %s", e.Group, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Group, e.Code, e.Message)
}

func (e Error) Unwrap() error {
	return e.Cause
}

// State is the part of a request context the engine reads and writes.
// Domain contexts embed it by value.
type State struct {
	RequestID string   `json:"requestId,omitempty"`
	Status    Status   `json:"status"`
	Mode      Mode     `json:"mode"`
	StubCase  StubCase `json:"stubCase,omitempty"`
	Errors    []Error  `json:"errors,omitempty"`
}

// PipelineState returns s itself, so any struct embedding State is a Subject.
func (s *State) PipelineState() *State {
	return s
}

// Advance moves the status forward. Only INIT->RUN, RUN->OK and RUN->FAIL are
// accepted; any other move leaves the status unchanged and returns false.
func (s *State) Advance(to Status) bool {
	switch {
	case s.Status == StatusInit && to == StatusRun,
		s.Status == StatusRun && to.Terminal():
		s.Status = to
		return true
	default:
		return false
	}
}

// AddError appends err without touching the status.
func (s *State) AddError(err Error) {
	s.Errors = append(s.Errors, err)
}

// Fail appends err and moves a running context to StatusFail.
func (s *State) Fail(err Error) {
	s.AddError(err)
	s.Advance(StatusFail)
}

// HasErrors reports whether any error has been recorded.
func (s *State) HasErrors() bool {
	return len(s.Errors) > 0
}

// IsTerminal reports whether the status is OK or FAIL.
func (s *State) IsTerminal() bool {
	return s.Status.Terminal()
}

// Subject is implemented by every context a Processor can execute.
type Subject interface {
	PipelineState() *State
}
