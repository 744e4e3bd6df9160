/*
Package pipeline provides guarded execution trees for request processing.

A processor owns an immutable tree of stages built once at start-up. Each
request gets its own context value (a struct embedding State) which the tree
mutates in place: stages read and write the status, the error list and the
domain fields, and guards decide, on every traversal, which stages run.

# Building a Processor

	b := pipeline.NewBuilder[*Context]("cards")

	b.Operation("create", isCommand(Create)).
		Stub(
			pipeline.StubOutcome[*Context](pipeline.StubSuccess, fillStubCard),
			pipeline.StubFailure[*Context](StubBadWord, badWordError),
		).
		Normalize(pipeline.Normalization[*Context]("word", normalizeWord)).
		Validate(pipeline.Validation[*Context]("word", validateWord)).
		Run(pipeline.Backend[*Context]("create", "card", createCard)).
		Finish(pipeline.Finisher[*Context]())

	proc, err := b.Build(pipeline.Config{Logger: logger, Metrics: registry})

Build rejects an operation without a finishing stage, so every branch commits
a terminal status.

# Phases

Every operation branch runs, in order:

  - stub: only in ModeStub; answers the StubCase with a scripted outcome, or
    fails with stub/unsupported-case
  - normalize: derives normalized copies of raw request fields
  - validate: appends field-scoped errors; never changes the status
  - run: calls collaborators, only when not stubbed and no error was recorded
  - finish: OK when the error list is empty, FAIL otherwise

# Execution

	c := &Context{Command: Create, Card: card}
	if err := proc.Execute(ctx, c); err != nil {
		// a stage without a failure handler returned an error
	}
	switch c.Status {
	case pipeline.StatusOK:
	case pipeline.StatusFail:
		// c.Errors lists what went wrong
	}

A request that no branch finished (for example an operation the processor
does not know) is failed with a pipeline/unhandled-operation error.

# Thread Safety

A Processor may be executed concurrently from multiple goroutines. A context
value must not be shared between concurrent runs.
*/
package pipeline
