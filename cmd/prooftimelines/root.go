package main

import (
	"fmt"

	"github.com/bcromer77/prooftimelines/internal/config"
	"github.com/bcromer77/prooftimelines/internal/logging"

	"github.com/spf13/cobra"
)

// cliState carries the configuration loaded once by the root command.
type cliState struct {
	configPath string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	state := &cliState{}

	cmd := &cobra.Command{
		Use:           "prooftimelines",
		Short:         "Evidence ledger service",
		Long:          "Stores case evidence in a per-case hash chain and serves timelines and verifiable exports.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(state.configPath)
			if err != nil {
				return err
			}
			state.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&state.configPath, "config", "", "config file (yaml, toml or json)")
	cmd.Version = fmt.Sprintf("%s.%s", version, commit)

	cmd.AddCommand(
		newServeCommand(state),
		newMigrateCommand(state),
		newVerifyCommand(),
		newTokenCommand(state),
	)
	return cmd
}

func (s *cliState) logger() (*logging.SlogLogger, func()) {
	logger, closer := logging.New(logging.Options{
		Level:      s.cfg.LogLevel,
		File:       s.cfg.LogFile,
		MaxSizeMB:  s.cfg.LogMaxSizeMB,
		MaxBackups: s.cfg.LogMaxBackups,
		MaxAgeDays: s.cfg.LogMaxAgeDays,
		Compress:   s.cfg.LogCompress,
	})
	return logger, func() { _ = closer.Close() }
}
