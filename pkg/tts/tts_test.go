package tts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/repository/memory"
)

func TestSpeak(t *testing.T) {
	prod := memory.NewSpeaker()
	prod.Add(model.Audio{Lang: "en", Word: "rain", ContentType: "audio/mpeg", Data: []byte{0xff, 0xfb}})

	proc, err := New(Dependencies{Prod: prod, Test: memory.NewSpeaker()}, pipeline.Config{})
	require.NoError(t, err)

	c := NewContext("EN", " Rain ", pipeline.ModeProd)
	require.NoError(t, proc.Execute(context.Background(), c))

	require.Equal(t, pipeline.StatusOK, c.Status, "%v", c.Errors)
	assert.Equal(t, "audio/mpeg", c.AudioResponse.ContentType)
	assert.Equal(t, []byte{0xff, 0xfb}, c.AudioResponse.Data)
}

func TestTestModeUsesTestSpeaker(t *testing.T) {
	prod := memory.NewSpeaker()
	prod.Add(model.Audio{Lang: "en", Word: "rain", ContentType: "audio/mpeg", Data: []byte{1}})

	proc, err := New(Dependencies{Prod: prod, Test: memory.NewSpeaker()}, pipeline.Config{})
	require.NoError(t, err)

	c := NewContext("en", "rain", pipeline.ModeTest)
	require.NoError(t, proc.Execute(context.Background(), c))
	require.Equal(t, pipeline.StatusOK, c.Status)
	assert.Equal(t, "audio/wav", c.AudioResponse.ContentType)
}

func TestValidation(t *testing.T) {
	proc, err := New(Dependencies{Prod: memory.NewSpeaker(), Test: memory.NewSpeaker()}, pipeline.Config{})
	require.NoError(t, err)

	c := NewContext("xx yy", "", pipeline.ModeProd)
	require.NoError(t, proc.Execute(context.Background(), c))

	assert.Equal(t, pipeline.StatusFail, c.Status)
	require.Len(t, c.Errors, 2)
	assert.Equal(t, "lang", c.Errors[0].Field)
	assert.Equal(t, "bad-language", c.Errors[0].Code)
	assert.Equal(t, "word", c.Errors[1].Field)
}

func TestStub(t *testing.T) {
	proc, err := New(Dependencies{Prod: memory.NewSpeaker(), Test: memory.NewSpeaker()}, pipeline.Config{})
	require.NoError(t, err)

	c := NewContext("", "", pipeline.ModeStub)
	c.StubCase = pipeline.StubSuccess
	require.NoError(t, proc.Execute(context.Background(), c))
	assert.Equal(t, pipeline.StatusOK, c.Status)
	assert.Equal(t, StubAudio, c.AudioResponse)

	c = NewContext("", "", pipeline.ModeStub)
	c.StubCase = pipeline.StubNotFound
	require.NoError(t, proc.Execute(context.Background(), c))
	assert.Equal(t, pipeline.StatusFail, c.Status)
	assert.Equal(t, "not-found", c.Errors[0].Code)
}
