// Package commands implements the vesperd CLI commands.
package commands

import (
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solenne/vesper/action"
	"github.com/solenne/vesper/api"
	"github.com/solenne/vesper/config"
	"github.com/solenne/vesper/db"
	"github.com/solenne/vesper/logger"
	"github.com/solenne/vesper/sched"
)

// runtime bundles everything a command needs to talk to the scheduler
type runtime struct {
	cfg       *config.Config
	db        *sql.DB
	store     *sched.Store
	runner    *sched.Runner
	service   *api.Service
	whitelist *action.Whitelist
	log       *zap.SugaredLogger
}

func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
}

// loadConfig reads configuration, honoring the persistent --config flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setup opens the database, applies migrations, and wires the action
// registry, dispatcher, runner, and API service
func setup(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(cfg.Log.JSON); err != nil {
		return nil, err
	}
	log := logger.Logger

	conn, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn, log); err != nil {
		conn.Close()
		return nil, err
	}

	registry := action.NewRegistry()

	whitelist, err := action.LoadWhitelist(cfg.Actions.WhitelistPath, log)
	if err != nil {
		// A missing whitelist only disables the command action
		log.Warnw("Command whitelist unavailable, command action will refuse everything",
			"path", cfg.Actions.WhitelistPath, "error", err)
		whitelist = action.EmptyWhitelist(log)
	}
	registry.Register(action.NewCommandAction(whitelist, cfg.Actions.CommandTimeout, log))

	notes, err := action.NewNoteStore(cfg.Actions.NotesDir)
	if err != nil {
		conn.Close()
		return nil, err
	}
	registry.Register(action.NewNoteWriteAction(notes))
	registry.Register(action.NewNoteReadAction(notes))
	registry.Register(action.NewSearchAction(cfg.Actions.SearchTimeout))
	registry.Register(action.NewServerStatusAction())
	registry.Register(action.NewRemindAction())
	registry.Register(action.NewMemoryAddAction())

	dispatcher := action.NewDispatcher(registry, log)
	store := sched.NewStore(conn)
	runner := sched.NewRunner(store, dispatcher, cfg.Scheduler.StaleAfter, log)

	return &runtime{
		cfg:       cfg,
		db:        conn,
		store:     store,
		runner:    runner,
		service:   api.NewService(runner, store),
		whitelist: whitelist,
		log:       log,
	}, nil
}
