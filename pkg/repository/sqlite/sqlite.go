// Package sqlite implements the repository interfaces on an embedded SQLite
// database through the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/repository"
)

// Store owns the database handle. Cards, Dictionaries and Settings return
// views over it.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dictionaries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			source_lang TEXT NOT NULL,
			target_lang TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			dictionary_id TEXT NOT NULL,
			word TEXT NOT NULL,
			transcription TEXT NOT NULL DEFAULT '',
			part_of_speech TEXT NOT NULL DEFAULT '',
			translations TEXT NOT NULL,
			examples TEXT NOT NULL,
			answered INTEGER NOT NULL DEFAULT 0,
			changed_ms INTEGER NOT NULL,
			FOREIGN KEY (dictionary_id) REFERENCES dictionaries(id)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			user_id TEXT PRIMARY KEY,
			show_words_number INTEGER NOT NULL,
			options_variants INTEGER NOT NULL,
			words_per_stage INTEGER NOT NULL,
			right_answers_to_learn INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_dictionary ON cards(dictionary_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dictionaries_user ON dictionaries(user_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Cards returns the card repository.
func (s *Store) Cards() repository.CardRepository { return cardRepo{s} }

// Dictionaries returns the dictionary repository.
func (s *Store) Dictionaries() repository.DictionaryRepository { return dictionaryRepo{s} }

// Settings returns the settings repository.
func (s *Store) Settings() repository.SettingsRepository { return settingsRepo{s} }

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", table, err)
	}
	return n > 0, nil
}

const cardColumns = `id, dictionary_id, word, transcription, part_of_speech, translations, examples, answered, changed_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (model.Card, error) {
	var (
		card                   model.Card
		translations, examples string
		changed                int64
	)
	err := row.Scan(&card.ID, &card.DictionaryID, &card.Word, &card.Transcription, &card.PartOfSpeech,
		&translations, &examples, &card.Answered, &changed)
	if err != nil {
		return model.Card{}, err
	}
	if err := json.Unmarshal([]byte(translations), &card.Translations); err != nil {
		return model.Card{}, fmt.Errorf("failed to decode translations: %w", err)
	}
	if err := json.Unmarshal([]byte(examples), &card.Examples); err != nil {
		return model.Card{}, fmt.Errorf("failed to decode examples: %w", err)
	}
	card.Changed = time.UnixMilli(changed).UTC()
	return card, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

type cardRepo struct{ s *Store }

func (r cardRepo) Create(ctx context.Context, card model.Card) (model.Card, error) {
	translations, err := encodeList(card.Translations)
	if err != nil {
		return model.Card{}, err
	}
	examples, err := encodeList(card.Examples)
	if err != nil {
		return model.Card{}, err
	}
	card.ID = uuid.NewString()
	card.Changed = time.UnixMilli(r.s.now().UnixMilli()).UTC()

	err = r.s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "dictionaries", card.DictionaryID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dictionary %s: %w", card.DictionaryID, repository.ErrDictionaryNotFound)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO cards (`+cardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			card.ID, card.DictionaryID, card.Word, card.Transcription, card.PartOfSpeech,
			translations, examples, card.Answered, card.Changed.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert card: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Card{}, err
	}
	return card, nil
}

func (r cardRepo) Update(ctx context.Context, card model.Card) (model.Card, error) {
	translations, err := encodeList(card.Translations)
	if err != nil {
		return model.Card{}, err
	}
	examples, err := encodeList(card.Examples)
	if err != nil {
		return model.Card{}, err
	}
	card.Changed = time.UnixMilli(r.s.now().UnixMilli()).UTC()

	err = r.s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "cards", card.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("card %s: %w", card.ID, repository.ErrNotFound)
		}
		ok, err = exists(ctx, tx, "dictionaries", card.DictionaryID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dictionary %s: %w", card.DictionaryID, repository.ErrDictionaryNotFound)
		}
		_, err = tx.ExecContext(ctx, `UPDATE cards SET dictionary_id = ?, word = ?, transcription = ?,
			part_of_speech = ?, translations = ?, examples = ?, answered = ?, changed_ms = ? WHERE id = ?`,
			card.DictionaryID, card.Word, card.Transcription, card.PartOfSpeech,
			translations, examples, card.Answered, card.Changed.UnixMilli(), card.ID)
		if err != nil {
			return fmt.Errorf("failed to update card: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Card{}, err
	}
	return card, nil
}

func (r cardRepo) Get(ctx context.Context, id string) (model.Card, error) {
	row := r.s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Card{}, fmt.Errorf("card %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Card{}, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

func (r cardRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r cardRepo) Search(ctx context.Context, filter model.CardFilter) ([]model.Card, error) {
	if len(filter.DictionaryIDs) == 0 {
		return nil, nil
	}

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + cardColumns + ` FROM cards WHERE dictionary_id IN (`)
	for i, id := range filter.DictionaryIDs {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString("?")
		args = append(args, id)
	}
	query.WriteString(")")
	if filter.Unknown {
		query.WriteString(" AND answered < ?")
		args = append(args, filter.Threshold)
	}
	if filter.Random {
		query.WriteString(" ORDER BY RANDOM()")
	} else {
		query.WriteString(" ORDER BY word, id")
	}
	if filter.Length > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Length)
	}

	rows, err := r.s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search cards: %w", err)
	}
	defer rows.Close()

	var found []model.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		found = append(found, card)
	}
	return found, rows.Err()
}

func (r cardRepo) Learn(ctx context.Context, answers []model.Answer) ([]model.Card, error) {
	changed := r.s.now().UnixMilli()
	updated := make([]model.Card, 0, len(answers))

	err := r.s.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range answers {
			res, err := tx.ExecContext(ctx, `UPDATE cards SET answered = ?, changed_ms = ? WHERE id = ?`,
				a.Answered, changed, a.CardID)
			if err != nil {
				return fmt.Errorf("failed to update card: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("card %s: %w", a.CardID, repository.ErrNotFound)
			}
			card, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, a.CardID))
			if err != nil {
				return fmt.Errorf("failed to reload card: %w", err)
			}
			updated = append(updated, card)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r cardRepo) Reset(ctx context.Context, id string) (model.Card, error) {
	res, err := r.s.db.ExecContext(ctx, `UPDATE cards SET answered = 0, changed_ms = ? WHERE id = ?`,
		r.s.now().UnixMilli(), id)
	if err != nil {
		return model.Card{}, fmt.Errorf("failed to reset card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Card{}, fmt.Errorf("card %s: %w", id, repository.ErrNotFound)
	}
	return r.Get(ctx, id)
}

type dictionaryRepo struct{ s *Store }

const dictionarySelect = `SELECT d.id, d.user_id, d.name, d.source_lang, d.target_lang,
	(SELECT COUNT(*) FROM cards c WHERE c.dictionary_id = d.id) FROM dictionaries d`

func scanDictionary(row scanner) (model.Dictionary, error) {
	var d model.Dictionary
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.SourceLang, &d.TargetLang, &d.CardsCount)
	return d, err
}

func (r dictionaryRepo) Create(ctx context.Context, dict model.Dictionary) (model.Dictionary, error) {
	dict.ID = uuid.NewString()
	dict.CardsCount = 0
	_, err := r.s.db.ExecContext(ctx, `INSERT INTO dictionaries (id, user_id, name, source_lang, target_lang)
		VALUES (?, ?, ?, ?, ?)`, dict.ID, dict.UserID, dict.Name, dict.SourceLang, dict.TargetLang)
	if err != nil {
		return model.Dictionary{}, fmt.Errorf("failed to insert dictionary: %w", err)
	}
	return dict, nil
}

func (r dictionaryRepo) Update(ctx context.Context, dict model.Dictionary) (model.Dictionary, error) {
	res, err := r.s.db.ExecContext(ctx, `UPDATE dictionaries SET user_id = ?, name = ?, source_lang = ?,
		target_lang = ? WHERE id = ?`, dict.UserID, dict.Name, dict.SourceLang, dict.TargetLang, dict.ID)
	if err != nil {
		return model.Dictionary{}, fmt.Errorf("failed to update dictionary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Dictionary{}, fmt.Errorf("dictionary %s: %w", dict.ID, repository.ErrNotFound)
	}
	return r.Get(ctx, dict.ID)
}

func (r dictionaryRepo) Get(ctx context.Context, id string) (model.Dictionary, error) {
	d, err := scanDictionary(r.s.db.QueryRowContext(ctx, dictionarySelect+` WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Dictionary{}, fmt.Errorf("dictionary %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Dictionary{}, fmt.Errorf("failed to get dictionary: %w", err)
	}
	return d, nil
}

func (r dictionaryRepo) Delete(ctx context.Context, id string) error {
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, "dictionaries", id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dictionary %s: %w", id, repository.ErrNotFound)
		}
		var cards int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE dictionary_id = ?`, id).Scan(&cards); err != nil {
			return fmt.Errorf("failed to count cards: %w", err)
		}
		if cards > 0 {
			return fmt.Errorf("dictionary %s: %w", id, repository.ErrNotEmpty)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dictionaries WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete dictionary: %w", err)
		}
		return nil
	})
}

func (r dictionaryRepo) List(ctx context.Context, userID string) ([]model.Dictionary, error) {
	rows, err := r.s.db.QueryContext(ctx, dictionarySelect+` WHERE d.user_id = ? ORDER BY d.name, d.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dictionaries: %w", err)
	}
	defer rows.Close()

	var found []model.Dictionary
	for rows.Next() {
		d, err := scanDictionary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dictionary: %w", err)
		}
		found = append(found, d)
	}
	return found, rows.Err()
}

type settingsRepo struct{ s *Store }

func (r settingsRepo) Get(ctx context.Context, userID string) (model.Settings, error) {
	st := model.Settings{UserID: userID}
	err := r.s.db.QueryRowContext(ctx, `SELECT show_words_number, options_variants, words_per_stage,
		right_answers_to_learn FROM settings WHERE user_id = ?`, userID).
		Scan(&st.ShowWordsNumber, &st.OptionsVariants, &st.WordsPerStage, &st.RightAnswersToLearn)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, fmt.Errorf("settings for %s: %w", userID, repository.ErrNotFound)
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return st, nil
}

func (r settingsRepo) Save(ctx context.Context, st model.Settings) (model.Settings, error) {
	_, err := r.s.db.ExecContext(ctx, `INSERT INTO settings (user_id, show_words_number, options_variants,
		words_per_stage, right_answers_to_learn) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET show_words_number = excluded.show_words_number,
		options_variants = excluded.options_variants, words_per_stage = excluded.words_per_stage,
		right_answers_to_learn = excluded.right_answers_to_learn`,
		st.UserID, st.ShowWordsNumber, st.OptionsVariants, st.WordsPerStage, st.RightAnswersToLearn)
	if err != nil {
		return model.Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return st, nil
}
