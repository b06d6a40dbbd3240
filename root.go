package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediastudio/config"
	"mediastudio/generation"
	"mediastudio/logging"
	"mediastudio/store"
)

type commandContext struct {
	configFlag *string
	logLevel   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		level := cfg.Settings.LogLevel
		if c.logLevel != nil && *c.logLevel != "" {
			level = *c.logLevel
		}
		if _, err := logging.New(level, cfg.Settings.LogFormat); err != nil {
			c.configErr = err
			return
		}
		if src := cfg.Source(); src != "" {
			zap.S().Infof("Loaded configuration from %s", src)
		} else {
			zap.S().Debug("No config file found, using defaults and environment")
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withService opens the gallery and hands a ready service to fn.
func (c *commandContext) withService(fn func(*config.Config, *store.Store, *generation.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open gallery: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			zap.S().Warnf("Closing gallery: %v", err)
		}
	}()
	return fn(cfg, st, generation.NewService(cfg, st))
}

func newRootCommand() *cobra.Command {
	var configFlag, logLevel string
	ctx := &commandContext{configFlag: &configFlag, logLevel: &logLevel}

	rootCmd := &cobra.Command{
		Use:           "mediastudio",
		Short:         "AI image and video generation studio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (conf.json or conf.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newProvidersCommand(ctx))
	rootCmd.AddCommand(newGalleryCommand(ctx))
	rootCmd.AddCommand(newKeysCommand(ctx))

	return rootCmd
}
