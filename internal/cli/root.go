// Package cli provides the command-line interface for the autotrader.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autotrader/internal/config"
)

// Version information.
const (
	Version = "0.1.0"
)

// App holds the dependencies shared across commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	DBPath string
}

// NewRootCmd creates the root command.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		DBPath: config.DefaultConfigDir() + "/autotrader.db",
	}

	rootCmd := &cobra.Command{
		Use:   "autotrader",
		Short: "Automated trading engine with ensemble strategies and risk gating",
		Long: `autotrader runs a decision-to-execution loop: an ensemble of
strategies proposes trades, a risk engine sizes and gates them, and an
execution router works them into the market in slices. A safety monitor
can halt all trading through a circuit breaker.

Use 'autotrader run' to start the engine, 'autotrader status' to inspect
trade history and performance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/autotrader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newDataCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
				return
			}
			output.Printf("autotrader %s\n", Version)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			output.JSON(app.Config)
		},
	})
	return configCmd
}
