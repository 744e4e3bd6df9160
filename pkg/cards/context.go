// Package cards builds the processor behind card operations: create, update,
// delete, get, search, learn and reset.
package cards

import (
	"github.com/vnykmshr/cardflow/pkg/common/validation"
	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

// Operation names a card command.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpGet    Operation = "get"
	OpSearch Operation = "search"
	OpLearn  Operation = "learn"
	OpReset  Operation = "reset"
)

// Stub cases specific to cards.
const (
	StubBadWord        pipeline.StubCase = "bad-word"
	StubBadTranslation pipeline.StubCase = "bad-translation"
)

// Context carries one card request through the processor. Raw request fields
// are never rewritten; normalization fills the Norm* fields.
type Context struct {
	pipeline.State

	Operation Operation `json:"operation"`

	CardRequest    model.Card       `json:"cardRequest"`
	CardIDRequest  string           `json:"cardIdRequest,omitempty"`
	FilterRequest  model.CardFilter `json:"filterRequest"`
	AnswersRequest []model.Answer   `json:"answersRequest,omitempty"`

	NormCard    model.Card       `json:"-"`
	NormCardID  string           `json:"-"`
	NormFilter  model.CardFilter `json:"-"`
	NormAnswers []model.Answer   `json:"-"`

	CardResponse  model.Card   `json:"cardResponse"`
	CardsResponse []model.Card `json:"cardsResponse,omitempty"`
}

// NewContext returns a context for op in mode.
func NewContext(op Operation, mode pipeline.Mode) *Context {
	return &Context{Operation: op, State: pipeline.State{Mode: mode}}
}

// Dependencies are the card stores. ModeTest requests go to Test, everything
// else to Prod.
type Dependencies struct {
	Prod repository.CardRepository
	Test repository.CardRepository
}

func (d Dependencies) validate() error {
	if err := validation.ValidateNotNil("cards", "Prod", d.Prod); err != nil {
		return err
	}
	return validation.ValidateNotNil("cards", "Test", d.Test)
}

func (d Dependencies) repo(mode pipeline.Mode) repository.CardRepository {
	if mode == pipeline.ModeTest {
		return d.Test
	}
	return d.Prod
}
