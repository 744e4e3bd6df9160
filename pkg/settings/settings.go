// Package settings builds the processor that reads and stores per-user
// learning settings. A user who never saved settings gets the defaults.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vnykmshr/cardflow/pkg/common/validation"
	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

// ProcessorName is the name reported in stats, metrics and spans.
const ProcessorName = "settings"

// Operation selects the branch a request takes.
type Operation string

// Settings operations.
const (
	OpGet    Operation = "get"
	OpUpdate Operation = "update"
)

// StubSettings answers successful stubs.
var StubSettings = model.Settings{
	UserID:              "42",
	ShowWordsNumber:     7,
	OptionsVariants:     4,
	WordsPerStage:       3,
	RightAnswersToLearn: 10,
}

// Context carries one settings request and its response.
type Context struct {
	pipeline.State

	Operation Operation `json:"operation"`

	UserIDRequest   string         `json:"userIdRequest,omitempty"`
	SettingsRequest model.Settings `json:"settingsRequest"`

	NormUserID   string         `json:"-"`
	NormSettings model.Settings `json:"-"`

	SettingsResponse model.Settings `json:"settingsResponse"`
}

// NewContext creates a context for op in mode.
func NewContext(op Operation, mode pipeline.Mode) *Context {
	return &Context{Operation: op, State: pipeline.State{Mode: mode}}
}

// Dependencies are the settings repositories. ModeTest requests go to Test.
type Dependencies struct {
	Prod repository.SettingsRepository
	Test repository.SettingsRepository
}

func (d Dependencies) repo(mode pipeline.Mode) repository.SettingsRepository {
	if mode == pipeline.ModeTest {
		return d.Test
	}
	return d.Prod
}

// New builds the settings processor.
func New(deps Dependencies, config pipeline.Config) (*pipeline.Processor[*Context], error) {
	if err := validation.ValidateNotNil(ProcessorName, "Prod", deps.Prod); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil(ProcessorName, "Test", deps.Test); err != nil {
		return nil, err
	}

	b := pipeline.NewBuilder[*Context](ProcessorName).Describe("user settings")

	b.Operation(string(OpGet), func(c *Context) bool { return c.Operation == OpGet }).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, func(c *Context) { c.SettingsResponse = StubSettings }),
			stubError(pipeline.StubBadID, "bad-id", "userId"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(pipeline.Normalization("user-id", func(c *Context) {
			c.NormUserID = strings.TrimSpace(c.UserIDRequest)
		})).
		Validate(pipeline.Validation("user-id", func(c *Context) *pipeline.Error {
			return checkUserID(c.NormUserID)
		})).
		Run(pipeline.Backend("get", "userId", func(ctx context.Context, c *Context) error {
			s, err := deps.repo(c.Mode).Get(ctx, c.NormUserID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				c.SettingsResponse = model.DefaultSettings(c.NormUserID)
				return nil
			case err != nil:
				return err
			}
			c.SettingsResponse = s
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	b.Operation(string(OpUpdate), func(c *Context) bool { return c.Operation == OpUpdate }).
		Stub(
			pipeline.StubOutcome(pipeline.StubSuccess, func(c *Context) { c.SettingsResponse = StubSettings }),
			stubError(pipeline.StubBadID, "bad-id", "userId"),
			stubError(pipeline.StubDBError, "db-error", ""),
		).
		Normalize(pipeline.Normalization("settings", func(c *Context) {
			c.NormSettings = c.SettingsRequest
			c.NormSettings.UserID = strings.TrimSpace(c.SettingsRequest.UserID)
		})).
		Validate(
			pipeline.Validation("user-id", func(c *Context) *pipeline.Error {
				return checkUserID(c.NormSettings.UserID)
			}),
			positive("showWordsNumber", func(s model.Settings) int { return s.ShowWordsNumber }),
			positive("optionsVariants", func(s model.Settings) int { return s.OptionsVariants }),
			positive("wordsPerStage", func(s model.Settings) int { return s.WordsPerStage }),
			positive("rightAnswersToLearn", func(s model.Settings) int { return s.RightAnswersToLearn }),
		).
		Run(pipeline.Backend("update", "settings", func(ctx context.Context, c *Context) error {
			s, err := deps.repo(c.Mode).Save(ctx, c.NormSettings)
			if err != nil {
				return err
			}
			c.SettingsResponse = s
			return nil
		})).
		Finish(pipeline.Finisher[*Context]())

	return b.Build(config)
}

func stubError(sc pipeline.StubCase, code, field string) pipeline.Stage[*Context] {
	return pipeline.StubFailure[*Context](sc, pipeline.Error{
		Code:    code,
		Group:   pipeline.GroupStub,
		Field:   field,
		Message: fmt.Sprintf("stub case %s", sc),
	})
}

func checkUserID(id string) *pipeline.Error {
	if id == "" {
		return pipeline.ValidationError("empty", "userId", "userId must not be empty")
	}
	if !model.ValidID(id) {
		return pipeline.ValidationError("bad-format", "userId", fmt.Sprintf("userId %q is malformed", id))
	}
	return nil
}

func positive(field string, get func(model.Settings) int) pipeline.Stage[*Context] {
	return pipeline.Validation(field, func(c *Context) *pipeline.Error {
		if get(c.NormSettings) <= 0 {
			return pipeline.ValidationError("not-positive", field, field+" must be positive")
		}
		return nil
	})
}
