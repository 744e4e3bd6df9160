package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFinisher is returned by Build when an operation has no finishing stage.
	ErrMissingFinisher = errors.New("operation has no finishing stage")

	// ErrDuplicateOperation is returned by Build when two operations share a name.
	ErrDuplicateOperation = errors.New("duplicate operation")

	// ErrInvalidTree is returned by Build for unnamed or unguarded operations.
	ErrInvalidTree = errors.New("invalid processor tree")
)

// Builder declares a processor tree. Each operation branch follows the same
// shape: stub, normalize, validate, run, finish.
type Builder[T Subject] struct {
	name        string
	description string
	operations  []*OperationBuilder[T]
}

// NewBuilder starts a tree for the processor called name.
func NewBuilder[T Subject](name string) *Builder[T] {
	return &Builder[T]{name: name}
}

// Describe sets the root description.
func (b *Builder[T]) Describe(description string) *Builder[T] {
	b.description = description
	return b
}

// Operation declares a branch taken when matches holds for a running subject.
func (b *Builder[T]) Operation(name string, matches Guard[T]) *OperationBuilder[T] {
	op := &OperationBuilder[T]{name: name, matches: matches}
	b.operations = append(b.operations, op)
	return op
}

// OperationBuilder collects the phases of one operation branch.
type OperationBuilder[T Subject] struct {
	name      string
	matches   Guard[T]
	stubs     []Stage[T]
	normalize []Stage[T]
	validate  []Stage[T]
	run       []Stage[T]
	finish    Stage[T]
}

// Stub adds scripted-outcome stages. A stage reporting an unsupported stub
// case is appended automatically at Build time.
func (o *OperationBuilder[T]) Stub(stages ...Stage[T]) *OperationBuilder[T] {
	o.stubs = append(o.stubs, stages...)
	return o
}

// Normalize adds stages that derive normalized request fields.
func (o *OperationBuilder[T]) Normalize(stages ...Stage[T]) *OperationBuilder[T] {
	o.normalize = append(o.normalize, stages...)
	return o
}

// Validate adds validator stages.
func (o *OperationBuilder[T]) Validate(stages ...Stage[T]) *OperationBuilder[T] {
	o.validate = append(o.validate, stages...)
	return o
}

// Run adds backend stages.
func (o *OperationBuilder[T]) Run(stages ...Stage[T]) *OperationBuilder[T] {
	o.run = append(o.run, stages...)
	return o
}

// Finish sets the stage that commits the terminal status.
func (o *OperationBuilder[T]) Finish(stage Stage[T]) *OperationBuilder[T] {
	o.finish = stage
	return o
}

func (o *OperationBuilder[T]) chain() *Chain[T] {
	stages := []Stage[T]{
		&Chain[T]{
			Title:  o.name + ".stub",
			On:     ModeIs[T](ModeStub),
			Stages: append(append([]Stage[T]{}, o.stubs...), StubNoCase[T]()),
		},
	}
	if len(o.normalize) > 0 {
		stages = append(stages, &Chain[T]{
			Title:  o.name + ".normalize",
			On:     StatusIs[T](StatusRun),
			Stages: o.normalize,
		})
	}
	if len(o.validate) > 0 {
		stages = append(stages, &Chain[T]{
			Title:  o.name + ".validate",
			On:     All(ModeIsNot[T](ModeStub), StatusIs[T](StatusRun)),
			Stages: o.validate,
		})
	}
	if len(o.run) > 0 {
		// Each run stage is gated on its own so a failure stops the rest.
		run := make([]Stage[T], 0, len(o.run))
		for _, stage := range o.run {
			run = append(run, &Chain[T]{
				Title:  stage.Name(),
				On:     All(StatusIs[T](StatusRun), NoErrors[T]()),
				Stages: []Stage[T]{stage},
			})
		}
		stages = append(stages, &Chain[T]{
			Title:  o.name + ".run",
			On:     All(ModeIsNot[T](ModeStub), StatusIs[T](StatusRun), NoErrors[T]()),
			Stages: run,
		})
	}
	stages = append(stages, o.finish)

	return &Chain[T]{
		Title:  o.name,
		On:     All(o.matches, StatusIs[T](StatusRun)),
		Stages: stages,
	}
}

// Build checks the declaration and returns the processor. The tree is not
// modified afterwards.
func (b *Builder[T]) Build(config Config) (*Processor[T], error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: processor name is empty", ErrInvalidTree)
	}

	root := &Chain[T]{
		Title:       b.name,
		Description: b.description,
		Stages:      []Stage[T]{InitStage[T]()},
	}

	seen := make(map[string]bool, len(b.operations))
	for _, op := range b.operations {
		switch {
		case op.name == "":
			return nil, fmt.Errorf("%w: %s has an unnamed operation", ErrInvalidTree, b.name)
		case op.matches == nil:
			return nil, fmt.Errorf("%w: operation %s.%s has no guard", ErrInvalidTree, b.name, op.name)
		case seen[op.name]:
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateOperation, b.name, op.name)
		case op.finish == nil:
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingFinisher, b.name, op.name)
		}
		seen[op.name] = true
		root.Stages = append(root.Stages, op.chain())
	}

	return newProcessor(b.name, root, config), nil
}
