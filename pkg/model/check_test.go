package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("10"))
	assert.True(t, ValidID("0b7f2c9e-7c1a-4f4e-9a55-3c2b1d0e8f11"))
	assert.True(t, ValidID("card_1"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("a b"))
	assert.False(t, ValidID("ид"))
	assert.False(t, ValidID(strings.Repeat("a", MaxIDLength+1)))
}

func TestCanonicalLang(t *testing.T) {
	got, err := CanonicalLang(" EN-us ")
	require.NoError(t, err)
	assert.Equal(t, "en-US", got)

	got, err = CanonicalLang("ru")
	require.NoError(t, err)
	assert.Equal(t, "ru", got)

	_, err = CanonicalLang("not a tag")
	assert.Error(t, err)
	_, err = CanonicalLang("")
	assert.Error(t, err)
}

func TestNormalizeLang(t *testing.T) {
	assert.Equal(t, "de", NormalizeLang(" DE "))
	assert.Equal(t, "??", NormalizeLang(" ?? "))
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("user-1")
	assert.Equal(t, "user-1", s.UserID)
	assert.Positive(t, s.ShowWordsNumber)
	assert.Positive(t, s.RightAnswersToLearn)
}
