package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cards.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createDictionary(t *testing.T, s *Store, user, name string) model.Dictionary {
	t.Helper()
	d, err := s.Dictionaries().Create(context.Background(), model.Dictionary{
		UserID: user, Name: name, SourceLang: "en", TargetLang: "de",
	})
	require.NoError(t, err)
	return d
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.db")
	s, err := Open(path)
	require.NoError(t, err)
	d := createDictionary(t, s, "user-1", "weather")
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Dictionaries().Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "weather", got.Name)
}

func TestCards(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	d := createDictionary(t, s, "user-1", "weather")

	card, err := s.Cards().Create(ctx, model.Card{
		DictionaryID: d.ID, Word: "rain", Translations: []string{"Regen"}, Examples: []string{"heavy rain"},
	})
	require.NoError(t, err)

	got, err := s.Cards().Get(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card, got)

	got.Transcription = "reɪn"
	_, err = s.Cards().Update(ctx, got)
	require.NoError(t, err)

	learned, err := s.Cards().Learn(ctx, []model.Answer{{CardID: card.ID, Answered: 7}})
	require.NoError(t, err)
	require.Len(t, learned, 1)
	assert.Equal(t, 7, learned[0].Answered)
	assert.Equal(t, "reɪn", learned[0].Transcription)

	reset, err := s.Cards().Reset(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.Answered)

	require.NoError(t, s.Cards().Delete(ctx, card.ID))
	_, err = s.Cards().Get(ctx, card.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.Cards().Delete(ctx, card.ID), repository.ErrNotFound)
}

func TestCardNotFound(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Cards().Create(ctx, model.Card{DictionaryID: "missing", Word: "rain"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Cards().Update(ctx, model.Card{ID: "missing", Word: "rain"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Cards().Reset(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Cards().Learn(ctx, []model.Answer{{CardID: "missing", Answered: 1}})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCardUpdateRequiresDictionary(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	d := createDictionary(t, s, "user-1", "weather")
	card, err := s.Cards().Create(ctx, model.Card{DictionaryID: d.ID, Word: "rain", Translations: []string{"Regen"}})
	require.NoError(t, err)

	moved := card
	moved.DictionaryID = "no-such-dictionary"
	_, err = s.Cards().Update(ctx, moved)
	assert.ErrorIs(t, err, repository.ErrDictionaryNotFound)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := s.Cards().Get(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.DictionaryID)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := openStore(t)

	var on int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)

	_, err := s.db.Exec(`INSERT INTO cards (` + cardColumns + `) VALUES ('c1', 'nowhere', 'rain', '', '', '[]', '[]', 0, 0)`)
	assert.Error(t, err)
}

func TestLearnRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	d := createDictionary(t, s, "user-1", "weather")
	card, err := s.Cards().Create(ctx, model.Card{DictionaryID: d.ID, Word: "rain", Translations: []string{"Regen"}})
	require.NoError(t, err)

	_, err = s.Cards().Learn(ctx, []model.Answer{{CardID: card.ID, Answered: 3}, {CardID: "missing", Answered: 1}})
	require.ErrorIs(t, err, repository.ErrNotFound)

	got, err := s.Cards().Get(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Answered)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	d := createDictionary(t, s, "user-1", "weather")
	other := createDictionary(t, s, "user-1", "animals")

	for _, w := range []string{"wind", "rain", "fog"} {
		_, err := s.Cards().Create(ctx, model.Card{DictionaryID: d.ID, Word: w, Translations: []string{"x"}})
		require.NoError(t, err)
	}
	cat, err := s.Cards().Create(ctx, model.Card{DictionaryID: other.ID, Word: "cat", Translations: []string{"Katze"}})
	require.NoError(t, err)

	found, err := s.Cards().Search(ctx, model.CardFilter{DictionaryIDs: []string{d.ID}})
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, []string{"fog", "rain", "wind"}, []string{found[0].Word, found[1].Word, found[2].Word})

	found, err = s.Cards().Search(ctx, model.CardFilter{DictionaryIDs: []string{d.ID, other.ID}, Random: true, Length: 2})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = s.Cards().Learn(ctx, []model.Answer{{CardID: cat.ID, Answered: 20}})
	require.NoError(t, err)
	found, err = s.Cards().Search(ctx, model.CardFilter{DictionaryIDs: []string{other.ID}, Unknown: true, Threshold: 15})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = s.Cards().Search(ctx, model.CardFilter{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDictionaries(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	d := createDictionary(t, s, "user-1", "weather")
	createDictionary(t, s, "user-1", "animals")
	createDictionary(t, s, "user-2", "colors")

	list, err := s.Dictionaries().List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "animals", list[0].Name)

	d.Name = "sky"
	updated, err := s.Dictionaries().Update(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "sky", updated.Name)

	card, err := s.Cards().Create(ctx, model.Card{DictionaryID: d.ID, Word: "cloud", Translations: []string{"Wolke"}})
	require.NoError(t, err)

	got, err := s.Dictionaries().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CardsCount)

	assert.ErrorIs(t, s.Dictionaries().Delete(ctx, d.ID), repository.ErrNotEmpty)
	require.NoError(t, s.Cards().Delete(ctx, card.ID))
	require.NoError(t, s.Dictionaries().Delete(ctx, d.ID))

	_, err = s.Dictionaries().Get(ctx, d.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Dictionaries().Update(ctx, d)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	repo := openStore(t).Settings()

	_, err := repo.Get(ctx, "user-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	st := model.DefaultSettings("user-1")
	_, err = repo.Save(ctx, st)
	require.NoError(t, err)

	st.WordsPerStage = 8
	_, err = repo.Save(ctx, st)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, st, got)
}
