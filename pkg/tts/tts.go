// Package tts builds the processor that returns spoken pronunciations of words.
package tts

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
const ProcessorName = "tts"

// Operation selects the branch a request takes.
type Operation string

// OpGet fetches the pronunciation of a word.
const OpGet Operation = "get"

// StubAudio answers successful stubs.
var StubAudio = model.Audio{
	ID:          "en:stub",
	Lang:        "en",
	Word:        "stub",
	ContentType: "audio/wav",
	Data:        []byte("stub-audio"),
}

// Context carries one pronunciation request.
type Context struct {
	pipeline.State

	Operation Operation `json:"operation"`

	LangRequest string `json:"langRequest"`
	WordRequest string `json:"wordRequest"`

	NormLang string `json:"-"`
	NormWord string `json:"-"`

	AudioResponse model.Audio `json:"audioResponse"`
}

// NewContext creates a pronunciation request for word in lang.
func NewContext(lang, word string, mode pipeline.Mode) *Context {
	return &Context{Operation: OpGet, LangRequest: lang, WordRequest: word, State: pipeline.State{Mode: mode}}
}

// Dependencies are the speech providers. ModeTest requests go to Test.
type Dependencies struct {
	Prod repository.Speaker
	Test repository.Speaker
}

func (d Dependencies) speaker(mode pipeline.Mode) repository.Speaker {
	if mode == pipeline.ModeTest {
		return d.Test
	}
	return d.Prod
}

// New builds the tts processor.
func New(deps Dependencies, config pipeline.Config) (*pipeline.Processor[*Context], error) {
	if err := validation.ValidateNotNil(ProcessorName, "Prod", deps.Prod); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil(ProcessorName, "Test", deps.Test); err != nil {
		return nil, err
	}

	b := pipeline.NewBuilder[*Context](ProcessorName).Describe("text to speech")

	b.Operation(string(OpGet), func(c *Context) bool { return c.Operation == OpGet }).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, func(c *Context) {
				c.AudioResponse = StubAudio
				c.AudioResponse.Data = append([]byte(nil), StubAudio.Data...)
			}),
			pipeline.StubFailure[*Context](pipeline.StubNotFound, pipeline.Error{
				Code: "not-found", Group: pipeline.GroupStub, Field: "word", Message: "stub case not-found",
			}),
			pipeline.StubFailure[*Context](pipeline.StubDBError, pipeline.Error{
				Code: "db-error", Group: pipeline.GroupStub, Message: "stub case db-error",
			}),
		).
		Normalize(pipeline.Normalization("request", func(c *Context) {
			c.NormLang = model.NormalizeLang(c.LangRequest)
			c.NormWord = strings.ToLower(strings.TrimSpace(c.WordRequest))
		})).
		Validate(
			pipeline.Validation("lang", func(c *Context) *pipeline.Error {
				if c.NormLang == "" {
					return pipeline.ValidationError("empty", "lang", "lang must not be empty")
				}
				if _, err := model.CanonicalLang(c.NormLang); err != nil {
					return pipeline.ValidationError("bad-language", "lang", fmt.Sprintf("lang %q is not a language tag", c.NormLang))
				}
				return nil
			}),
			pipeline.Validation("word", func(c *Context) *pipeline.Error {
				if c.NormWord == "" {
					return pipeline.ValidationError("empty", "word", "word must not be empty")
				}
				return nil
			}),
		).
		Run(pipeline.Backend("speak", "word", func(ctx context.Context, c *Context) error {
			audio, err := deps.speaker(c.Mode).Speak(ctx, c.NormLang, c.NormWord)
			if err != nil {
				perr := pipeline.BackendError("speak", "word", err)
				perr.Code = repository.Code(err)
				return perr
			}
			c.AudioResponse = audio
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	return b.Build(config)
}
