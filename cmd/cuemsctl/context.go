package main

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenibako/cuems-golang/config"
)

type globalFlags struct {
	configPath  string
	controlURL  string
	realtimeURL string
	logLevel    string
	logFormat   string
	timeout     time.Duration
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// flagOverrides maps explicitly set flags onto config keys
func (c *commandContext) flagOverrides(cmd *cobra.Command) map[string]any {
	bindings := map[string]string{
		"control-url":  "engine.control_url",
		"realtime-url": "engine.realtime_url",
		"log-level":    "logging.level",
		"log-format":   "logging.format",
	}
	overrides := make(map[string]any)
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	return overrides
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(strings.TrimSpace(c.flags.configPath), c.flagOverrides(cmd))
	})
	return c.config, c.configErr
}

func (c *commandContext) timeout() time.Duration {
	if c.flags.timeout <= 0 {
		return 10 * time.Second
	}
	return c.flags.timeout
}
