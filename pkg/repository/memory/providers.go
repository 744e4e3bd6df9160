package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

// Speaker returns deterministic audio: a recorded resource when one was
// added, otherwise a placeholder payload derived from the word.
type Speaker struct {
	mu        sync.RWMutex
	resources map[string]model.Audio
}

// NewSpeaker creates a speaker with no recorded resources.
func NewSpeaker() *Speaker {
	return &Speaker{resources: make(map[string]model.Audio)}
}

func audioID(lang, word string) string {
	return strings.ToLower(lang) + ":" + strings.ToLower(word)
}

// Add records a resource for its language and word.
func (s *Speaker) Add(audio model.Audio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio.ID = audioID(audio.Lang, audio.Word)
	s.resources[audio.ID] = audio
}

// Speak implements repository.Speaker.
func (s *Speaker) Speak(_ context.Context, lang, word string) (model.Audio, error) {
	id := audioID(lang, word)

	s.mu.RLock()
	audio, ok := s.resources[id]
	s.mu.RUnlock()
	if ok {
		return audio, nil
	}

	return model.Audio{
		ID:          id,
		Lang:        lang,
		Word:        word,
		ContentType: "audio/wav",
		Data:        []byte("tts:" + id),
	}, nil
}

// Translator answers lookups from a fixed table.
type Translator struct {
	mu      sync.RWMutex
	entries map[string][]model.Entry
}

// NewTranslator creates an empty translator.
func NewTranslator() *Translator {
	return &Translator{entries: make(map[string][]model.Entry)}
}

func lookupKey(sourceLang, targetLang, word string) string {
	return strings.ToLower(sourceLang) + "|" + strings.ToLower(targetLang) + "|" + strings.ToLower(word)
}

// Add registers entries for a word of a language pair.
func (t *Translator) Add(sourceLang, targetLang, word string, entries ...model.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := lookupKey(sourceLang, targetLang, word)
	t.entries[key] = append(t.entries[key], entries...)
}

// Translate implements repository.Translator.
func (t *Translator) Translate(_ context.Context, sourceLang, targetLang, word string) ([]model.Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, ok := t.entries[lookupKey(sourceLang, targetLang, word)]
	if !ok {
		return nil, fmt.Errorf("translation of %q (%s->%s): %w", word, sourceLang, targetLang, repository.ErrNotFound)
	}
	out := make([]model.Entry, len(entries))
	copy(out, entries)
	return out, nil
}

var (
	_ repository.Speaker    = (*Speaker)(nil)
	_ repository.Translator = (*Translator)(nil)
)
