// Package model defines the flashcard entities exchanged between processors
// and their collaborators.
package model

import "time"

// Card is one word with its translations inside a dictionary.
type Card struct {
	ID            string    `json:"id,omitempty"`
	DictionaryID  string    `json:"dictionaryId"`
	Word          string    `json:"word"`
	Transcription string    `json:"transcription,omitempty"`
	PartOfSpeech  string    `json:"partOfSpeech,omitempty"`
	Translations  []string  `json:"translations"`
	Examples      []string  `json:"examples,omitempty"`
	Answered      int       `json:"answered"`
	Changed       time.Time `json:"changed,omitempty"`
}

// CardFilter selects cards for a learning session.
type CardFilter struct {
	DictionaryIDs []string `json:"dictionaryIds"`
	// Length caps the result size; 0 means no cap.
	Length int `json:"length,omitempty"`
	// Random shuffles the result.
	Random bool `json:"random,omitempty"`
	// Unknown keeps only cards answered fewer than Threshold times.
	Unknown   bool `json:"unknown,omitempty"`
	Threshold int  `json:"threshold,omitempty"`
}

// Answer reports how many times a card was answered correctly.
type Answer struct {
	CardID   string `json:"cardId"`
	Answered int    `json:"answered"`
}

// Dictionary groups cards of one language pair owned by one user.
type Dictionary struct {
	ID         string `json:"id,omitempty"`
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
	// CardsCount is filled by the repository on reads.
	CardsCount int `json:"cardsCount,omitempty"`
}

// Settings are per-user learning preferences.
type Settings struct {
	UserID              string `json:"userId"`
	ShowWordsNumber     int    `json:"showWordsNumber"`
	OptionsVariants     int    `json:"optionsVariants"`
	WordsPerStage       int    `json:"wordsPerStage"`
	RightAnswersToLearn int    `json:"rightAnswersToLearn"`
}

// DefaultSettings returns the settings of a user who never changed them.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:              userID,
		ShowWordsNumber:     10,
		OptionsVariants:     6,
		WordsPerStage:       5,
		RightAnswersToLearn: 15,
	}
}

// Entry is one dictionary article returned by a translation provider.
type Entry struct {
	Word          string   `json:"word"`
	Transcription string   `json:"transcription,omitempty"`
	PartOfSpeech  string   `json:"partOfSpeech,omitempty"`
	Translations  []string `json:"translations"`
	Examples      []string `json:"examples,omitempty"`
}

// Audio is a synthesized pronunciation of a word.
type Audio struct {
	ID          string `json:"id"`
	Lang        string `json:"lang"`
	Word        string `json:"word"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}
