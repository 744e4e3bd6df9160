package cards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

// ProcessorName is the name reported in stats, metrics and spans.
const ProcessorName = "cards"

// StubCard is the entity every successful stub answers with.
var StubCard = model.Card{
	ID:            "10",
	DictionaryID:  "100",
	Word:          "stub",
	Transcription: "stʌb",
	PartOfSpeech:  "noun",
	Translations:  []string{"заглушка"},
	Examples:      []string{"a stub answer"},
}

func is(op Operation) pipeline.Guard[*Context] {
	return func(c *Context) bool { return c.Operation == op }
}

// New builds the card processor.
func New(deps Dependencies, config pipeline.Config) (*pipeline.Processor[*Context], error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	b := pipeline.NewBuilder[*Context](ProcessorName).Describe("card operations")

	b.Operation(string(OpCreate), is(OpCreate)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, respondStubCard),
			stubError(StubBadWord, "bad-word", "word"),
			stubError(StubBadTranslation, "bad-translation", "translations"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeCard).
		Validate(validateDictionaryID, validateWordPresent, validateWordChars, validateTranslations).
		Run(pipeline.Backend("create", "card", func(ctx context.Context, c *Context) error {
			card, err := deps.repo(c.Mode).Create(ctx, c.NormCard)
			if err != nil {
				return storeFailure("create", "dictionaryId", err)
			}
			c.CardResponse = card
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpUpdate), is(OpUpdate)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, respondStubCard),
			stubError(pipeline.StubNotFound, "not-found", "id"),
			stubError(pipeline.StubBadID, "bad-id", "id"),
			stubError(StubBadWord, "bad-word", "word"),
			stubError(StubBadTranslation, "bad-translation", "translations"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeCard).
		Validate(validateCardID, validateDictionaryID, validateWordPresent, validateWordChars, validateTranslations).
		Run(pipeline.Backend("update", "card", func(ctx context.Context, c *Context) error {
			card, err := deps.repo(c.Mode).Update(ctx, c.NormCard)
			if errors.Is(err, repository.ErrDictionaryNotFound) {
				return storeFailure("update", "dictionaryId", err)
			}
			if err != nil {
				return storeFailure("update", "id", err)
			}
			c.CardResponse = card
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpGet), is(OpGet)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, respondStubCard),
			stubError(pipeline.StubNotFound, "not-found", "id"),
			stubError(pipeline.StubBadID, "bad-id", "id"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeCardID).
		Validate(validateRequestedID).
		Run(pipeline.Backend("get", "id", func(ctx context.Context, c *Context) error {
			card, err := deps.repo(c.Mode).Get(ctx, c.NormCardID)
			if err != nil {
				return storeFailure("get", "id", err)
			}
			c.CardResponse = card
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpDelete), is(OpDelete)).
		Stub(
			pipeline.StubOutcome[*Context](pipeline.StubSuccess, nil),
			stubError(pipeline.StubNotFound, "not-found", "id"),
			stubError(pipeline.StubBadID, "bad-id", "id"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeCardID).
		Validate(validateRequestedID).
		Run(pipeline.Backend("delete", "id", func(ctx context.Context, c *Context) error {
			if err := deps.repo(c.Mode).Delete(ctx, c.NormCardID); err != nil {
				return storeFailure("delete", "id", err)
			}
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpSearch), is(OpSearch)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, func(c *Context) {
				c.CardsResponse = []model.Card{stubCard()}
			}),
			stubError(pipeline.StubBadID, "bad-id", "dictionaryIds"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeFilter).
		Validate(validateFilterIDs, validateFilterBounds).
		Run(pipeline.Backend("search", "filter", func(ctx context.Context, c *Context) error {
			found, err := deps.repo(c.Mode).Search(ctx, c.NormFilter)
			if err != nil {
				return storeFailure("search", "filter", err)
			}
			c.CardsResponse = found
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpLearn), is(OpLearn)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, func(c *Context) {
				card := stubCard()
				card.Answered = 1
				c.CardsResponse = []model.Card{card}
			}),
			stubError(pipeline.StubNotFound, "not-found", "answers"),
			stubError(pipeline.StubBadID, "bad-id", "answers"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeAnswers).
		Validate(validateAnswers).
		Run(pipeline.Backend("learn", "answers", func(ctx context.Context, c *Context) error {
			updated, err := deps.repo(c.Mode).Learn(ctx, c.NormAnswers)
			if err != nil {
				return storeFailure("learn", "answers", err)
			}
			c.CardsResponse = updated
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpReset), is(OpReset)).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, respondStubCard),
			stubError(pipeline.StubNotFound, "not-found", "id"),
			stubError(pipeline.StubBadID, "bad-id", "id"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(normalizeCardID).
		Validate(validateRequestedID).
		Run(pipeline.Backend("reset", "id", func(ctx context.Context, c *Context) error {
			card, err := deps.repo(c.Mode).Reset(ctx, c.NormCardID)
			if err != nil {
				return storeFailure("reset", "id", err)
			}
			c.CardResponse = card
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	return b.Build(config)
}

func stubCard() model.Card {
	card := StubCard
	card.Translations = append([]string(nil), StubCard.Translations...)
	card.Examples = append([]string(nil), StubCard.Examples...)
	return card
}

func respondStubCard(c *Context) {
	c.CardResponse = stubCard()
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

var (
	normalizeCard = pipeline.Normalization("card", func(c *Context) {
		c.NormCard = model.Card{
			ID:            strings.TrimSpace(c.CardRequest.ID),
			DictionaryID:  strings.TrimSpace(c.CardRequest.DictionaryID),
			Word:          strings.ToLower(strings.TrimSpace(c.CardRequest.Word)),
			Transcription: strings.TrimSpace(c.CardRequest.Transcription),
			PartOfSpeech:  strings.ToLower(strings.TrimSpace(c.CardRequest.PartOfSpeech)),
			Translations:  cleanList(c.CardRequest.Translations),
			Examples:      cleanList(c.CardRequest.Examples),
			Answered:      c.CardRequest.Answered,
		}
	})

	normalizeCardID = pipeline.Normalization("id", func(c *Context) {
		c.NormCardID = strings.TrimSpace(c.CardIDRequest)
	})

	normalizeFilter = pipeline.Normalization("filter", func(c *Context) {
		c.NormFilter = c.FilterRequest
		c.NormFilter.DictionaryIDs = cleanList(c.FilterRequest.DictionaryIDs)
	})

	normalizeAnswers = pipeline.Normalization("answers", func(c *Context) {
		c.NormAnswers = make([]model.Answer, 0, len(c.AnswersRequest))
		for _, a := range c.AnswersRequest {
			c.NormAnswers = append(c.NormAnswers, model.Answer{CardID: strings.TrimSpace(a.CardID), Answered: a.Answered})
		}
	})
)

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// checkID returns a validation error for a malformed entity id, or nil.
func checkID(field, id string) *pipeline.Error {
	if id == "" {
		return pipeline.ValidationError("empty", field, field+" must not be empty")
	}
	if !model.ValidID(id) {
		return pipeline.ValidationError("bad-format", field, fmt.Sprintf("%s %q is malformed", field, id))
	}
	return nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r) || r == ' ' || r == '-' || r == '\''
}

var (
	validateCardID = pipeline.Validation("id", func(c *Context) *pipeline.Error {
		return checkID("id", c.NormCard.ID)
	})

	validateRequestedID = pipeline.Validation("id", func(c *Context) *pipeline.Error {
		return checkID("id", c.NormCardID)
	})

	validateDictionaryID = pipeline.Validation("dictionary-id", func(c *Context) *pipeline.Error {
		return checkID("dictionaryId", c.NormCard.DictionaryID)
	})

	validateWordPresent = pipeline.Validation("word-present", func(c *Context) *pipeline.Error {
		if c.NormCard.Word == "" {
			return pipeline.ValidationError("empty", "word", "word must not be empty")
		}
		return nil
	})

	// An empty word is reported by validateWordPresent only.
	validateWordChars = pipeline.Validation("word-chars", func(c *Context) *pipeline.Error {
		if strings.IndexFunc(c.NormCard.Word, func(r rune) bool { return !isWordRune(r) }) >= 0 {
			return pipeline.ValidationError("bad-format", "word", "word may contain only letters, spaces, hyphens and apostrophes")
		}
		return nil
	})

	validateTranslations = pipeline.Validation("translations", func(c *Context) *pipeline.Error {
		if len(c.NormCard.Translations) == 0 {
			return pipeline.ValidationError("empty", "translations", "at least one translation is required")
		}
		return nil
	})

	validateFilterIDs = pipeline.Validation("filter-ids", func(c *Context) *pipeline.Error {
		if len(c.NormFilter.DictionaryIDs) == 0 {
			return pipeline.ValidationError("empty", "dictionaryIds", "at least one dictionary id is required")
		}
		for _, id := range c.NormFilter.DictionaryIDs {
			if verr := checkID("dictionaryIds", id); verr != nil {
				return verr
			}
		}
		return nil
	})

	validateFilterBounds = pipeline.Validation("filter-bounds", func(c *Context) *pipeline.Error {
		if c.NormFilter.Length < 0 {
			return pipeline.ValidationError("negative", "length", "length must not be negative")
		}
		if c.NormFilter.Threshold < 0 {
			return pipeline.ValidationError("negative", "threshold", "threshold must not be negative")
		}
		return nil
	})

	validateAnswers = pipeline.Validation("answers", func(c *Context) *pipeline.Error {
		if len(c.NormAnswers) == 0 {
			return pipeline.ValidationError("empty", "answers", "at least one answer is required")
		}
		for _, a := range c.NormAnswers {
			if verr := checkID("answers", a.CardID); verr != nil {
				return verr
			}
			if a.Answered < 0 {
				return pipeline.ValidationError("negative", "answers", "answered must not be negative")
			}
		}
		return nil
	})
)
