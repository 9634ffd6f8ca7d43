package main

import (
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/pkg/config"
	"github.com/noah-isme/clearance-api/pkg/database"
	"github.com/noah-isme/clearance-api/pkg/logger"
)

type commandContext struct {
	verbose *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	dbOnce sync.Once
	db     *sqlx.DB
	dbErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
}

func newCommandContext(verbose *bool) *commandContext {
	return &commandContext{verbose: verbose}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureDB() (*sqlx.DB, error) {
	c.dbOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.dbErr = err
			return
		}
		c.db, c.dbErr = database.NewPostgres(cfg.Database)
	})
	return c.db, c.dbErr
}

func (c *commandContext) log() *zap.Logger {
	c.loggerOnce.Do(func() {
		c.logger = logger.NewCLI(c.verbose != nil && *c.verbose)
	})
	return c.logger
}

func (c *commandContext) close() {
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
