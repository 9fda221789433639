package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/yangwenmai/storyteller/internal/config"
	"github.com/yangwenmai/storyteller/internal/logging"
	"github.com/yangwenmai/storyteller/internal/store"
)

type commandContext struct {
	configFlag *string
	dbFlag     *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, dbFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dbFlag:     dbFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.dbFlag != nil && strings.TrimSpace(*c.dbFlag) != "" {
			cfg.DBPath = strings.TrimSpace(*c.dbFlag)
		}
		c.config = &cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logging.Discard()
	}
	// The CLI prints its own progress; only warnings and errors are logged.
	level := cfg.LogLevel
	if logging.ParseLevel(level) < slog.LevelWarn {
		level = "warn"
	}
	logger, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		return logging.Discard()
	}
	return logger
}

// withStore opens the configured database for the duration of fn.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	return fn(st)
}
