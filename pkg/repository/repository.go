// Package repository declares the collaborators processors call in their run
// phase: storage for cards, dictionaries and settings, plus the speech and
// translation providers.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/vnykmshr/cardflow/pkg/model"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDictionaryNotFound is returned when a card names a dictionary that
	// does not exist. It matches ErrNotFound.
	ErrDictionaryNotFound = fmt.Errorf("dictionary %w", ErrNotFound)

	// ErrNotEmpty is returned when deleting a dictionary that still holds cards.
	ErrNotEmpty = errors.New("dictionary is not empty")
)

// CardRepository stores cards.
type CardRepository interface {
	Create(ctx context.Context, card model.Card) (model.Card, error)
	Update(ctx context.Context, card model.Card) (model.Card, error)
	Get(ctx context.Context, id string) (model.Card, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, filter model.CardFilter) ([]model.Card, error)
	// Learn stores the answered counters and returns the updated cards.
	Learn(ctx context.Context, answers []model.Answer) ([]model.Card, error)
	// Reset sets the answered counter of a card back to zero.
	Reset(ctx context.Context, id string) (model.Card, error)
}

// DictionaryRepository stores dictionaries.
type DictionaryRepository interface {
	Create(ctx context.Context, dict model.Dictionary) (model.Dictionary, error)
	Update(ctx context.Context, dict model.Dictionary) (model.Dictionary, error)
	Get(ctx context.Context, id string) (model.Dictionary, error)
	// Delete fails with ErrNotEmpty while the dictionary holds cards.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, userID string) ([]model.Dictionary, error)
}

// SettingsRepository stores per-user settings.
type SettingsRepository interface {
	// Get returns ErrNotFound for a user without stored settings.
	Get(ctx context.Context, userID string) (model.Settings, error)
	Save(ctx context.Context, settings model.Settings) (model.Settings, error)
}

// Speaker synthesizes pronunciations.
type Speaker interface {
	Speak(ctx context.Context, lang, word string) (model.Audio, error)
}

// Translator looks words up in a bilingual dictionary service.
type Translator interface {
	Translate(ctx context.Context, sourceLang, targetLang, word string) ([]model.Entry, error)
}

// Code maps a collaborator error to the code recorded on a failed context.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrNotEmpty):
		return "cannot-delete"
	default:
		return "backend"
	}
}
