package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"flowops/internal/apiclient"
	"flowops/internal/config"
	"flowops/internal/release"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel(cfg *config.Config) string {
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		return strings.TrimSpace(*c.logLevelFlag)
	}
	return cfg.Logging.Level
}

func (c *commandContext) client() (*apiclient.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return apiclient.FromConfig(cfg), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// describeError adds an actionable hint to errors the user can fix.
func describeError(err error) string {
	switch {
	case errors.Is(err, apiclient.ErrUnavailable):
		return fmt.Sprintf("%v\nstart the daemon with `flowops start` or `flowops daemon`", err)
	case errors.Is(err, release.ErrDeveloperBusy):
		return fmt.Sprintf("%v\ncomplete the developer's current task first", err)
	case errors.Is(err, release.ErrSequenceViolation):
		return fmt.Sprintf("%v\ntasks must be completed in order", err)
	default:
		return err.Error()
	}
}

// exitCode distinguishes rejected operations (2) from other failures (1).
func exitCode(err error) int {
	switch release.Kind(err) {
	case release.KindInternal:
		return 1
	default:
		return 2
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
