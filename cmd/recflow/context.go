package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"recflow/internal/config"
	"recflow/internal/history"
	"recflow/internal/logging"
	"recflow/internal/state"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.flagPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// readState loads the state document without taking the lock, so it works
// while `recflow run` is active.
func (c *commandContext) readState() (*state.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return state.Load(cfg.Paths.StateFile, logging.NewNop())
}

// lockState takes the single-instance lock for commands that modify state.
func (c *commandContext) lockState() (*state.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := state.Open(cfg.Paths.StateFile, logging.NewNop())
	if errors.Is(err, state.ErrLocked) {
		return nil, fmt.Errorf("%w; stop `recflow run` first", err)
	}
	return store, err
}

// openHistory opens the journal. It returns nil without error when the
// journal is disabled or has not been created yet.
func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	path := strings.TrimSpace(cfg.Paths.HistoryDB)
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return history.Open(path)
}

// workflowRunning reports whether another process holds the state lock.
func (c *commandContext) workflowRunning() bool {
	cfg, err := c.ensureConfig()
	if err != nil {
		return false
	}
	locked, err := state.Locked(cfg.Paths.StateFile)
	return err == nil && locked
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
