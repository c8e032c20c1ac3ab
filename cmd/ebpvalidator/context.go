package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/stfn345/ats-ebp-validator/internal/config"
	"github.com/stfn345/ats-ebp-validator/internal/logging"
)

type commandContext struct {
	configFlag    string
	envFileFlag   string
	logLevelFlag  string
	logFormatFlag string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var envFiles []string
		if f := strings.TrimSpace(c.envFileFlag); f != "" {
			envFiles = append(envFiles, f)
		}
		if err := config.LoadDotEnv(envFiles...); err != nil {
			c.configErr = err
			return
		}
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if c.logLevelFlag != "" {
			cfg.Logging.Level = strings.ToLower(c.logLevelFlag)
		}
		if c.logFormatFlag != "" {
			cfg.Logging.Format = strings.ToLower(c.logFormatFlag)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config, c.configPath, c.configSeen = cfg, path, exists
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writer: w})
}
