package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/logging"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			c.config = config.Default()
			return
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// logger builds the process logger from config, with flags taking priority,
// and installs it as the slog default.
func (c *commandContext) logger(cmd *cobra.Command) (*slog.Logger, error) {
	level, format := "info", "text"
	if cfg, err := c.ensureConfig(); err == nil {
		level, format = cfg.Logging.Level, cfg.Logging.Format
	}
	if *c.logLevelFlag != "" {
		level = *c.logLevelFlag
	}
	if *c.logFormatFlag != "" {
		format = *c.logFormatFlag
	}
	log, err := logging.New(logging.Options{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag, logFormatFlag string
	ctx := &commandContext{
		configFlag:    &configFlag,
		logLevelFlag:  &logLevelFlag,
		logFormatFlag: &logFormatFlag,
	}

	rootCmd := &cobra.Command{
		Use:           "image-ingest",
		Short:         "Receive, validate and convert camera frames",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default: synthetic source)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newRecordCommand(ctx))
	rootCmd.AddCommand(newPublishCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "image-ingest %s\n", version)
			return nil
		},
	}
}
