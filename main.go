package main

import (
	"fmt"
	"os"

	"autotrader/internal/cli"
	"autotrader/internal/config"
	"autotrader/internal/logging"
)

func main() {
	configDir := configDirFromArgs(os.Args[1:])
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		FilePath:   config.DefaultConfigDir() + "/autotrader.log",
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
	})

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// configDirFromArgs extracts --config before cobra parses flags, because
// the configuration is needed to build the command tree's dependencies.
func configDirFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if len(arg) > 9 && arg[:9] == "--config=" {
			return arg[9:]
		}
	}
	return ""
}
