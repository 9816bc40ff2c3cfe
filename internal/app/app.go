// Package app wires configuration, storage, the oracle and the voice into a
// running persona engine.
package app

import (
	"fmt"

	"living-persona/internal/ai"
	"living-persona/internal/config"
	"living-persona/internal/mind"
	"living-persona/internal/speech"
	"living-persona/internal/storage"

	"github.com/rs/zerolog"
)

type App struct {
	Engine *mind.Engine
	Voice  *speech.Controller
	Store  storage.Store
	Log    zerolog.Logger
}

// Build opens storage and creates the engine speaking through sink.
func Build(cfg *config.Config, sink speech.Sink, log zerolog.Logger) (*App, error) {
	mcfg, err := cfg.Mind()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.StorageBackend, cfg.StoragePath, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	persona, err := ai.LoadPersona(cfg.PersonaName, cfg.PersonaIdentity)
	if err != nil {
		store.Close()
		return nil, err
	}
	provider := ai.NewChatProvider(ai.ChatConfig{
		Endpoint:    cfg.OracleEndpoint,
		Model:       cfg.OracleModel,
		APIKey:      cfg.OracleKey,
		Temperature: cfg.OracleTemperature,
		Timeout:     cfg.OracleTimeout,
	}, log)

	voice := speech.NewController(sink, log)
	engine, err := mind.NewEngine(mind.Options{
		Config:  mcfg,
		Store:   store,
		Oracle:  ai.NewOracle(provider, persona),
		Speaker: voice,
		Logger:  log,
		OnScene: func(from, to mind.LifeState) {
			log.Debug().Str("from", from.Activity).Str("to", to.Activity).Str("location", to.Location).Msg("scene changed")
		},
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &App{Engine: engine, Voice: voice, Store: store, Log: log}, nil
}

// Close silences the persona and flushes storage.
func (a *App) Close() error {
	a.Engine.Close()
	return a.Store.Close()
}
