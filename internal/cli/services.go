package cli

import (
	"fmt"
	"log/slog"

	"github.com/vnykmshr/cardflow/pkg/cards"
	"github.com/vnykmshr/cardflow/pkg/config"
	"github.com/vnykmshr/cardflow/pkg/dictionaries"
	"github.com/vnykmshr/cardflow/pkg/metrics"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/repository"
	"github.com/vnykmshr/cardflow/pkg/repository/memory"
	"github.com/vnykmshr/cardflow/pkg/repository/sqlite"
	"github.com/vnykmshr/cardflow/pkg/settings"
	"github.com/vnykmshr/cardflow/pkg/translation"
	"github.com/vnykmshr/cardflow/pkg/transport"
	"github.com/vnykmshr/cardflow/pkg/tts"
)

// Domains lists the topics served by cardflow serve, one per processor.
var Domains = []string{
	cards.ProcessorName,
	dictionaries.ProcessorName,
	settings.ProcessorName,
	translation.ProcessorName,
	tts.ProcessorName,
}

// services holds the five processors and the storage behind them.
type services struct {
	cards        *pipeline.Processor[*cards.Context]
	dictionaries *pipeline.Processor[*dictionaries.Context]
	settings     *pipeline.Processor[*settings.Context]
	tts          *pipeline.Processor[*tts.Context]
	translation  *pipeline.Processor[*translation.Context]

	close func() error
}

type stores struct {
	cards        repository.CardRepository
	dictionaries repository.DictionaryRepository
	settings     repository.SettingsRepository
}

func openStores(cfg config.StorageConfig) (stores, func() error, error) {
	switch cfg.Type {
	case "memory":
		m := memory.New()
		return stores{m.Cards(), m.Dictionaries(), m.Settings()}, func() error { return nil }, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return stores{}, nil, err
		}
		return stores{db.Cards(), db.Dictionaries(), db.Settings()}, db.Close, nil
	default:
		return stores{}, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// openServices builds every processor. PROD requests use the configured
// storage, TEST requests a fresh in-memory store. Speech and translation are
// answered by the in-memory providers in both modes.
func openServices(cfg *config.Config, logger *slog.Logger, registry *metrics.Registry) (*services, error) {
	prod, closeStore, err := openStores(cfg.Storage)
	if err != nil {
		return nil, err
	}
	test := memory.New()
	speaker := memory.NewSpeaker()
	translator := memory.NewTranslator()

	pc := pipeline.Config{Logger: logger, Metrics: registry}
	s := &services{close: closeStore}

	if s.cards, err = cards.New(cards.Dependencies{Prod: prod.cards, Test: test.Cards()}, pc); err != nil {
		return nil, fail(closeStore, err)
	}
	if s.dictionaries, err = dictionaries.New(dictionaries.Dependencies{Prod: prod.dictionaries, Test: test.Dictionaries()}, pc); err != nil {
		return nil, fail(closeStore, err)
	}
	if s.settings, err = settings.New(settings.Dependencies{Prod: prod.settings, Test: test.Settings()}, pc); err != nil {
		return nil, fail(closeStore, err)
	}
	if s.tts, err = tts.New(tts.Dependencies{Prod: speaker, Test: speaker}, pc); err != nil {
		return nil, fail(closeStore, err)
	}
	if s.translation, err = translation.New(translation.Dependencies{Prod: translator, Test: translator}, pc); err != nil {
		return nil, fail(closeStore, err)
	}
	return s, nil
}

func fail(closeStore func() error, err error) error {
	_ = closeStore()
	return err
}

// register routes every domain topic to its processor.
func (s *services) register(srv *transport.Server) {
	transport.Handle(srv, cards.ProcessorName, s.cards, func() *cards.Context { return &cards.Context{} })
	transport.Handle(srv, dictionaries.ProcessorName, s.dictionaries, func() *dictionaries.Context { return &dictionaries.Context{} })
	transport.Handle(srv, settings.ProcessorName, s.settings, func() *settings.Context { return &settings.Context{} })
	transport.Handle(srv, tts.ProcessorName, s.tts, func() *tts.Context { return &tts.Context{} })
	transport.Handle(srv, translation.ProcessorName, s.translation, func() *translation.Context { return &translation.Context{} })
}
