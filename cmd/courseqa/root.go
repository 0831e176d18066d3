package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xhad/courseqa/pkg/config"
	"github.com/xhad/courseqa/pkg/logger"
)

var (
	configPath string
	logMode    string

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "courseqa",
	Short: "Answer course questions from forum posts and course material",
	Long: `courseqa indexes a course's discourse posts and markdown pages into a
vector index and answers student questions from them, citing its sources.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "log mode: dev or prod (overrides config)")
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logMode != "" {
		loaded.Log.Mode = logMode
	}
	if errs := loaded.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	l, err := logger.New(loaded.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg, log = loaded, l
	return nil
}
