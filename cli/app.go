// ABOUTME: Wires config, backend, store adapter, merge engine and journal for subcommands
// ABOUTME: Every command receives one App and closes it on exit
package cli

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/harperreed/sfcrm/charm"
	"github.com/harperreed/sfcrm/config"
	"github.com/harperreed/sfcrm/db"
	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/query"
	"github.com/harperreed/sfcrm/store"
)

// App is the set of open components a command works against.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Client  *charm.Client
	Store   *store.Adapter
	Engine  *merge.Engine
	Query   *query.Service
	Journal *db.Journal // nil when the journal is disabled
}

// Open connects the configured backend and journal.
func Open(cfg *config.Config, logger *log.Logger) (*App, error) {
	var (
		client *charm.Client
		err    error
	)
	switch cfg.Backend {
	case config.BackendCharm:
		client, err = charm.NewClient(cfg.CharmConfig())
	default:
		client, err = charm.NewLocalClient(cfg.LocalStorePath())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}

	var journal *db.Journal
	if path := cfg.ResolvedJournalPath(); path != "" {
		journal, err = db.OpenJournal(path)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	return NewApp(cfg, logger, client, journal), nil
}

// NewApp assembles an App over an already open client and journal.
func NewApp(cfg *config.Config, logger *log.Logger, client *charm.Client, journal *db.Journal) *App {
	if logger == nil {
		logger = log.Default()
	}
	adapter := store.New(client, cfg.StoreOptions(logger))

	opts := merge.Options{StorageKey: cfg.StorageKey, Logger: logger}
	if journal != nil {
		opts.Journal = journal
	}
	engine := merge.NewEngine(adapter, opts)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Client:  client,
		Store:   adapter,
		Engine:  engine,
		Query:   query.NewService(engine, adapter, query.Options{Logger: logger}),
		Journal: journal,
	}
}

// Close releases watchers, the journal and the backend.
func (a *App) Close() error {
	a.Store.Close()
	var firstErr error
	if a.Journal != nil {
		firstErr = a.Journal.Close()
	}
	if err := a.Client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
