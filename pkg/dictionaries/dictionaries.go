// Package dictionaries builds the processor behind dictionary operations.
package dictionaries

import (
	"context"
	"fmt"
	"strings"

	"github.com/vnykmshr/cardflow/pkg/common/validation"
	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

// ProcessorName is the name reported in stats, metrics and spans.
const ProcessorName = "dictionaries"

// Operation names a dictionary command.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpGet    Operation = "get"
	OpList   Operation = "list"
)

// StubDictionary is the entity every successful stub answers with.
var StubDictionary = model.Dictionary{
	ID:         "100",
	UserID:     "42",
	Name:       "stub dictionary",
	SourceLang: "en",
	TargetLang: "ru",
	CardsCount: 3,
}

// Context carries one dictionary request.
type Context struct {
	pipeline.State

	Operation Operation `json:"operation"`

	DictionaryRequest   model.Dictionary `json:"dictionaryRequest"`
	DictionaryIDRequest string           `json:"dictionaryIdRequest,omitempty"`
	UserIDRequest       string           `json:"userIdRequest,omitempty"`

	NormDictionary   model.Dictionary `json:"-"`
	NormDictionaryID string           `json:"-"`
	NormUserID       string           `json:"-"`

	DictionaryResponse   model.Dictionary   `json:"dictionaryResponse"`
	DictionariesResponse []model.Dictionary `json:"dictionariesResponse,omitempty"`
}

// NewContext returns a context for op in mode.
func NewContext(op Operation, mode pipeline.Mode) *Context {
	return &Context{Operation: op, State: pipeline.State{Mode: mode}}
}

// Dependencies are the dictionary stores. ModeTest requests go to Test.
type Dependencies struct {
	Prod repository.DictionaryRepository
	Test repository.DictionaryRepository
}

func (d Dependencies) repo(mode pipeline.Mode) repository.DictionaryRepository {
	if mode == pipeline.ModeTest {
		return d.Test
	}
	return d.Prod
}

func is(op Operation) pipeline.Guard[*Context] {
	return func(c *Context) bool { return c.Operation == op }
}

// New builds the dictionary processor.
func New(deps Dependencies, config pipeline.Config) (*pipeline.Processor[*Context], error) {
	if err := validation.ValidateNotNil(ProcessorName, "Prod", deps.Prod); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil(ProcessorName, "Test", deps.Test); err != nil {
		return nil, err
	}

	b := pipeline.NewBuilder[*Context](ProcessorName).Describe("dictionary operations")

	b.Operation(string(OpCreate), is(OpCreate)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, respondStub),
			stubError(pipeline.StubBadID, "bad-id", "userId"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeDictionary).
		Validate(validateUserID, validateName, validateSourceLang, validateTargetLang).
		Run(pipeline.Backend("create", "dictionary", func(ctx context.Context, c *Context) error {
			d, err := deps.repo(c.Mode).Create(ctx, c.NormDictionary)
			if err != nil {
				return storeFailure("create", "dictionary", err)
			}
			c.DictionaryResponse = d
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpUpdate), is(OpUpdate)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, respondStub),
			stubError(pipeline.StubNotFound, "not-found", "id"),
			stubError(pipeline.StubBadID, "bad-id", "id"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeDictionary).
		Validate(validateDictionaryID, validateUserID, validateName, validateSourceLang, validateTargetLang).
		Run(pipeline.Backend("update", "dictionary", func(ctx context.Context, c *Context) error {
			d, err := deps.repo(c.Mode).Update(ctx, c.NormDictionary)
			if err != nil {
				return storeFailure("update", "id", err)
			}
			c.DictionaryResponse = d
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpGet), is(OpGet)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, respondStub),
			stubError(pipeline.StubNotFound, "not-found", "id"),
			stubError(pipeline.StubBadID, "bad-id", "id"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeDictionaryID).
		Validate(validateRequestedID).
		Run(pipeline.Backend("get", "id", func(ctx context.Context, c *Context) error {
			d, err := deps.repo(c.Mode).Get(ctx, c.NormDictionaryID)
			if err != nil {
				return storeFailure("get", "id", err)
			}
			c.DictionaryResponse = d
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpDelete), is(OpDelete)).
		Stub(
			pipeline.StubOutcome[*Context](pipeline.StubSuccess, nil),
			stubError(pipeline.StubNotFound, "not-found", "id"),
			stubError(pipeline.StubBadID, "bad-id", "id"),
			stubError(pipeline.StubCannotDelete, "cannot-delete", "id"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeDictionaryID).
		Validate(validateRequestedID).
		Run(pipeline.Backend("delete", "id", func(ctx context.Context, c *Context) error {
			if err := deps.repo(c.Mode).Delete(ctx, c.NormDictionaryID); err != nil {
				return storeFailure("delete", "id", err)
			}
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpList), is(OpList)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, func(c *Context) {
				c.DictionariesResponse = []model.Dictionary{StubDictionary}
			}),
			stubError(pipeline.StubBadID, "bad-id", "userId"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(pipeline.Normalization("user-id", func(c *Context) {
			c.NormUserID = strings.TrimSpace(c.UserIDRequest)
		})).
		Validate(pipeline.Validation("user-id", func(c *Context) *pipeline.Error {
			return checkID("userId", c.NormUserID)
		})).
		Run(pipeline.Backend("list", "userId", func(ctx context.Context, c *Context) error {
			list, err := deps.repo(c.Mode).List(ctx, c.NormUserID)
			if err != nil {
				return storeFailure("list", "userId", err)
			}
			c.DictionariesResponse = list
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	return b.Build(config)
}

func respondStub(c *Context) {
	c.DictionaryResponse = StubDictionary
}

func stubError(sc pipeline.StubCase, code, field string) pipeline.Stage[*Context] {
	return pipeline.StubFailure[*Context](sc, pipeline.Error{
		Code:    code,
		Group:   pipeline.GroupStub,
		Field:   field,
		Message: fmt.Sprintf("stub case %s", sc),
	})
}

func storeFailure(operation, field string, err error) error {
	perr := pipeline.BackendError(operation, field, err)
	perr.Code = repository.Code(err)
	return perr
}

func checkID(field, id string) *pipeline.Error {
	if id == "" {
		return pipeline.ValidationError("empty", field, field+" must not be empty")
	}
	if !model.ValidID(id) {
		return pipeline.ValidationError("bad-format", field, fmt.Sprintf("%s %q is malformed", field, id))
	}
	return nil
}

func checkLang(field, tag string) *pipeline.Error {
	if tag == "" {
		return pipeline.ValidationError("empty", field, field+" must not be empty")
	}
	if _, err := model.CanonicalLang(tag); err != nil {
		return pipeline.ValidationError("bad-language", field, fmt.Sprintf("%s %q is not a language tag", field, tag))
	}
	return nil
}

var (
	normalizeDictionary = pipeline.Normalization("dictionary", func(c *Context) {
		c.NormDictionary = model.Dictionary{
			ID:         strings.TrimSpace(c.DictionaryRequest.ID),
			UserID:     strings.TrimSpace(c.DictionaryRequest.UserID),
			Name:       strings.Join(strings.Fields(c.DictionaryRequest.Name), " "),
			SourceLang: model.NormalizeLang(c.DictionaryRequest.SourceLang),
			TargetLang: model.NormalizeLang(c.DictionaryRequest.TargetLang),
		}
	})

	normalizeDictionaryID = pipeline.Normalization("id", func(c *Context) {
		c.NormDictionaryID = strings.TrimSpace(c.DictionaryIDRequest)
	})

	validateDictionaryID = pipeline.Validation("id", func(c *Context) *pipeline.Error {
		return checkID("id", c.NormDictionary.ID)
	})

	validateRequestedID = pipeline.Validation("id", func(c *Context) *pipeline.Error {
		return checkID("id", c.NormDictionaryID)
	})

	validateUserID = pipeline.Validation("user-id", func(c *Context) *pipeline.Error {
		return checkID("userId", c.NormDictionary.UserID)
	})

	validateName = pipeline.Validation("name", func(c *Context) *pipeline.Error {
		if c.NormDictionary.Name == "" {
			return pipeline.ValidationError("empty", "name", "name must not be empty")
		}
		return nil
	})

	validateSourceLang = pipeline.Validation("source-lang", func(c *Context) *pipeline.Error {
		return checkLang("sourceLang", c.NormDictionary.SourceLang)
	})

	validateTargetLang = pipeline.Validation("target-lang", func(c *Context) *pipeline.Error {
		return checkLang("targetLang", c.NormDictionary.TargetLang)
	})
)
