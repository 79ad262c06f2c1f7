package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reqflow/internal/config"
	"reqflow/internal/daemon"
	"reqflow/internal/logging"
	"reqflow/internal/workflow"
)

type commandContext struct {
	configFlag *string
	actorFlag  *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, actorFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		actorFlag:  actorFlag,
		jsonFlag:   jsonFlag,
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// actor resolves who is acting: --as, then REQFLOW_ACTOR, then USER.
func (c *commandContext) actor() string {
	if c.actorFlag != nil {
		if v := strings.TrimSpace(*c.actorFlag); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(os.Getenv("REQFLOW_ACTOR")); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv("USER"))
}

// withEngine builds the engine over the configured store for one command.
func (c *commandContext) withEngine(cmd *cobra.Command, fn func(context.Context, *workflow.Engine) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:            "warn",
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := cmd.Context()
	components, err := daemon.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(ctx, components.Engine)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseID(kind, value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s id %q", workflow.ErrValidation, kind, value)
	}
	return id, nil
}

// parseOptionalBool reads "", "true" or "false".
func parseOptionalBool(name, value string) (*bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("%w: --%s must be true or false", workflow.ErrValidation, name)
	}
	return &b, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
