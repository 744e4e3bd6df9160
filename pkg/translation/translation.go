// Package translation builds the processor that looks words up in a
// bilingual dictionary provider.
package translation

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
const ProcessorName = "translation"

// Operation selects the branch a request takes.
type Operation string

// OpFetch looks up the entries of a word.
const OpFetch Operation = "fetch"

// StubEntry answers successful stubs.
var StubEntry = model.Entry{
	Word:          "stub",
	Transcription: "stʌb",
	PartOfSpeech:  "noun",
	Translations:  []string{"заглушка"},
}

// Context carries one lookup request.
type Context struct {
	pipeline.State

	Operation Operation `json:"operation"`

	SourceLangRequest string `json:"sourceLangRequest"`
	TargetLangRequest string `json:"targetLangRequest"`
	WordRequest       string `json:"wordRequest"`

	NormSourceLang string `json:"-"`
	NormTargetLang string `json:"-"`
	NormWord       string `json:"-"`

	EntriesResponse []model.Entry `json:"entriesResponse,omitempty"`
}

// NewContext creates a lookup of word from sourceLang to targetLang.
func NewContext(sourceLang, targetLang, word string, mode pipeline.Mode) *Context {
	return &Context{
		Operation:         OpFetch,
		SourceLangRequest: sourceLang,
		TargetLangRequest: targetLang,
		WordRequest:       word,
		State:             pipeline.State{Mode: mode},
	}
}

// Dependencies are the translation providers. ModeTest requests go to Test.
type Dependencies struct {
	Prod repository.Translator
	Test repository.Translator
}

func (d Dependencies) translator(mode pipeline.Mode) repository.Translator {
	if mode == pipeline.ModeTest {
		return d.Test
	}
	return d.Prod
}

func langValidation(field string, get func(*Context) string) pipeline.Stage[*Context] {
	return pipeline.Validation(field, func(c *Context) *pipeline.Error {
		tag := get(c)
		if tag == "" {
			return pipeline.ValidationError("empty", field, field+" must not be empty")
		}
		if _, err := model.CanonicalLang(tag); err != nil {
			return pipeline.ValidationError("bad-language", field, fmt.Sprintf("%s %q is not a language tag", field, tag))
		}
		return nil
	})
}

// New builds the translation processor.
func New(deps Dependencies, config pipeline.Config) (*pipeline.Processor[*Context], error) {
	if err := validation.ValidateNotNil(ProcessorName, "Prod", deps.Prod); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil(ProcessorName, "Test", deps.Test); err != nil {
		return nil, err
	}

	b := pipeline.NewBuilder[*Context](ProcessorName).Describe("dictionary lookups")

	b.Operation(string(OpFetch), func(c *Context) bool { return c.Operation == OpFetch }).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, func(c *Context) {
				entry := StubEntry
				entry.Translations = append([]string(nil), StubEntry.Translations...)
				c.EntriesResponse = []model.Entry{entry}
			}),
			pipeline.StubFailure[*Context](pipeline.StubNotFound, pipeline.Error{
				Code: "not-found", Group: pipeline.GroupStub, Field: "word", Message: "stub case not-found",
			}),
			pipeline.StubFailure[*Context](pipeline.StubDBError, pipeline.Error{
				Code: "db-error", Group: pipeline.GroupStub, Message: "stub case db-error",
			}),
		).
		Normalize(pipeline.Normalization("request", func(c *Context) {
			c.NormSourceLang = model.NormalizeLang(c.SourceLangRequest)
			c.NormTargetLang = model.NormalizeLang(c.TargetLangRequest)
			c.NormWord = strings.Join(strings.Fields(strings.ToLower(c.WordRequest)), " ")
		})).
		Validate(
			langValidation("sourceLang", func(c *Context) string { return c.NormSourceLang }),
			langValidation("targetLang", func(c *Context) string { return c.NormTargetLang }),
			pipeline.Validation("word", func(c *Context) *pipeline.Error {
				if c.NormWord == "" {
					return pipeline.ValidationError("empty", "word", "word must not be empty")
				}
				return nil
			}),
		).
		Run(pipeline.Backend("translate", "word", func(ctx context.Context, c *Context) error {
			entries, err := deps.translator(c.Mode).Translate(ctx, c.NormSourceLang, c.NormTargetLang, c.NormWord)
			if err != nil {
				perr := pipeline.BackendError("translate", "word", err)
				perr.Code = repository.Code(err)
				return perr
			}
			c.EntriesResponse = entries
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	return b.Build(config)
}
