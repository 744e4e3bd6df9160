package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

func TestAdvanceNeverMovesBackward(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var s State
		steps := rapid.SliceOf(rapid.SampledFrom([]Status{StatusInit, StatusRun, StatusOK, StatusFail})).Draw(rt, "steps")

		for _, to := range steps {
			before := s.Status
			moved := s.Advance(to)

			if before.Terminal() && s.Status != before {
				rt.Fatalf("terminal status %v changed to %v", before, s.Status)
			}
			if moved && s.Status < before {
				rt.Fatalf("status moved backward from %v to %v", before, s.Status)
			}
			if before == StatusInit && s.Status.Terminal() {
				rt.Fatalf("status skipped run: %v -> %v", before, s.Status)
			}
		}
	})
}

func TestProcessorOutcomeProperties(t *testing.T) {
	backend := &wordBackend{}
	proc := buildWords(t, backend, Config{})

	rapid.Check(t, func(rt *rapid.T) {
		c := &wordContext{
			Op:   rapid.SampledFrom([]string{"save", "rename"}).Draw(rt, "op"),
			Word: rapid.StringMatching(`[ a-zA-Z]{0,14}`).Draw(rt, "word"),
			State: State{
				Mode:     rapid.SampledFrom([]Mode{ModeProd, ModeTest, ModeStub}).Draw(rt, "mode"),
				StubCase: rapid.SampledFrom([]StubCase{StubNone, StubSuccess, stubLoud, "unknown"}).Draw(rt, "case"),
			},
		}
		before := atomic.LoadInt32(&backend.calls)

		if err := proc.Execute(context.Background(), c); err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		ran := atomic.LoadInt32(&backend.calls) != before

		if !c.IsTerminal() {
			rt.Fatalf("status %v is not terminal", c.Status)
		}
		if c.HasErrors() != (c.Status == StatusFail) {
			rt.Fatalf("status %v with %d errors", c.Status, len(c.Errors))
		}
		if ran && (c.Mode == ModeStub || c.Op != "save") {
			rt.Fatalf("backend ran for mode %v op %q", c.Mode, c.Op)
		}
		if c.Mode == ModeStub && c.Op == "save" {
			switch c.StubCase {
			case StubSuccess:
				if c.Status != StatusOK || len(c.Errors) != 0 {
					rt.Fatalf("stub success gave %v with %v", c.Status, c.Errors)
				}
			default:
				if c.Status != StatusFail || len(c.Errors) != 1 {
					rt.Fatalf("stub case %q gave %v with %v", c.StubCase, c.Status, c.Errors)
				}
			}
		}
		for _, e := range c.Errors {
			if e.Group == GroupValidation && ran {
				rt.Fatalf("backend ran despite validation error %v", e)
			}
		}
	})
}
