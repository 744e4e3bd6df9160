// Package memory provides in-process implementations of the repository
// collaborators. Processors route ModeTest requests to them.
package memory

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

// Store keeps cards, dictionaries and settings in maps guarded by one lock.
type Store struct {
	mu           sync.RWMutex
	cards        map[string]model.Card
	dictionaries map[string]model.Dictionary
	settings     map[string]model.Settings
	now          func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		cards:        make(map[string]model.Card),
		dictionaries: make(map[string]model.Dictionary),
		settings:     make(map[string]model.Settings),
		now:          time.Now,
	}
}

// Cards returns the card repository view of the store.
func (s *Store) Cards() repository.CardRepository { return cardRepo{s} }

// Dictionaries returns the dictionary repository view of the store.
func (s *Store) Dictionaries() repository.DictionaryRepository { return dictionaryRepo{s} }

// Settings returns the settings repository view of the store.
func (s *Store) Settings() repository.SettingsRepository { return settingsRepo{s} }

func clone(card model.Card) model.Card {
	card.Translations = slices.Clone(card.Translations)
	card.Examples = slices.Clone(card.Examples)
	return card
}

type cardRepo struct{ s *Store }

func (r cardRepo) Create(_ context.Context, card model.Card) (model.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.dictionaries[card.DictionaryID]; !ok {
		return model.Card{}, fmt.Errorf("dictionary %s: %w", card.DictionaryID, repository.ErrDictionaryNotFound)
	}
	card.ID = uuid.NewString()
	card.Changed = r.s.now().UTC()
	r.s.cards[card.ID] = clone(card)
	return card, nil
}

func (r cardRepo) Update(_ context.Context, card model.Card) (model.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cards[card.ID]; !ok {
		return model.Card{}, fmt.Errorf("card %s: %w", card.ID, repository.ErrNotFound)
	}
	if _, ok := r.s.dictionaries[card.DictionaryID]; !ok {
		return model.Card{}, fmt.Errorf("dictionary %s: %w", card.DictionaryID, repository.ErrDictionaryNotFound)
	}
	card.Changed = r.s.now().UTC()
	r.s.cards[card.ID] = clone(card)
	return card, nil
}

func (r cardRepo) Get(_ context.Context, id string) (model.Card, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	card, ok := r.s.cards[id]
	if !ok {
		return model.Card{}, fmt.Errorf("card %s: %w", id, repository.ErrNotFound)
	}
	return clone(card), nil
}

func (r cardRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cards[id]; !ok {
		return fmt.Errorf("card %s: %w", id, repository.ErrNotFound)
	}
	delete(r.s.cards, id)
	return nil
}

func (r cardRepo) Search(_ context.Context, filter model.CardFilter) ([]model.Card, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found []model.Card
	for _, card := range r.s.cards {
		if !slices.Contains(filter.DictionaryIDs, card.DictionaryID) {
			continue
		}
		if filter.Unknown && card.Answered >= filter.Threshold {
			continue
		}
		found = append(found, clone(card))
	}

	if filter.Random {
		rand.Shuffle(len(found), func(i, j int) { found[i], found[j] = found[j], found[i] })
	} else {
		slices.SortFunc(found, func(a, b model.Card) int {
			if c := strings.Compare(a.Word, b.Word); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
	}
	if filter.Length > 0 && len(found) > filter.Length {
		found = found[:filter.Length]
	}
	return found, nil
}

func (r cardRepo) Learn(_ context.Context, answers []model.Answer) ([]model.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range answers {
		if _, ok := r.s.cards[a.CardID]; !ok {
			return nil, fmt.Errorf("card %s: %w", a.CardID, repository.ErrNotFound)
		}
	}

	updated := make([]model.Card, 0, len(answers))
	for _, a := range answers {
		card := r.s.cards[a.CardID]
		card.Answered = a.Answered
		card.Changed = r.s.now().UTC()
		r.s.cards[a.CardID] = card
		updated = append(updated, clone(card))
	}
	return updated, nil
}

func (r cardRepo) Reset(_ context.Context, id string) (model.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	card, ok := r.s.cards[id]
	if !ok {
		return model.Card{}, fmt.Errorf("card %s: %w", id, repository.ErrNotFound)
	}
	card.Answered = 0
	card.Changed = r.s.now().UTC()
	r.s.cards[id] = card
	return clone(card), nil
}

type dictionaryRepo struct{ s *Store }

func (r dictionaryRepo) countCards(id string) int {
	n := 0
	for _, card := range r.s.cards {
		if card.DictionaryID == id {
			n++
		}
	}
	return n
}

func (r dictionaryRepo) Create(_ context.Context, dict model.Dictionary) (model.Dictionary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	dict.ID = uuid.NewString()
	dict.CardsCount = 0
	r.s.dictionaries[dict.ID] = dict
	return dict, nil
}

func (r dictionaryRepo) Update(_ context.Context, dict model.Dictionary) (model.Dictionary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.dictionaries[dict.ID]; !ok {
		return model.Dictionary{}, fmt.Errorf("dictionary %s: %w", dict.ID, repository.ErrNotFound)
	}
	r.s.dictionaries[dict.ID] = dict
	dict.CardsCount = r.countCards(dict.ID)
	return dict, nil
}

func (r dictionaryRepo) Get(_ context.Context, id string) (model.Dictionary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	dict, ok := r.s.dictionaries[id]
	if !ok {
		return model.Dictionary{}, fmt.Errorf("dictionary %s: %w", id, repository.ErrNotFound)
	}
	dict.CardsCount = r.countCards(id)
	return dict, nil
}

func (r dictionaryRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.dictionaries[id]; !ok {
		return fmt.Errorf("dictionary %s: %w", id, repository.ErrNotFound)
	}
	if r.countCards(id) > 0 {
		return fmt.Errorf("dictionary %s: %w", id, repository.ErrNotEmpty)
	}
	delete(r.s.dictionaries, id)
	return nil
}

func (r dictionaryRepo) List(_ context.Context, userID string) ([]model.Dictionary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found []model.Dictionary
	for _, dict := range r.s.dictionaries {
		if dict.UserID != userID {
			continue
		}
		dict.CardsCount = r.countCards(dict.ID)
		found = append(found, dict)
	}
	slices.SortFunc(found, func(a, b model.Dictionary) int { return strings.Compare(a.Name, b.Name) })
	return found, nil
}

type settingsRepo struct{ s *Store }

func (r settingsRepo) Get(_ context.Context, userID string) (model.Settings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	settings, ok := r.s.settings[userID]
	if !ok {
		return model.Settings{}, fmt.Errorf("settings for %s: %w", userID, repository.ErrNotFound)
	}
	return settings, nil
}

func (r settingsRepo) Save(_ context.Context, settings model.Settings) (model.Settings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.settings[settings.UserID] = settings
	return settings, nil
}
