package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"krusty/internal/config"
	"krusty/internal/logging"
)

var version = "0.1.0"

var (
	flagModel      string
	flagProvider   string
	flagAutonomous bool
	flagPlan       bool
	flagResume     string
	flagPrompt     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "krusty",
		Short: "AI coding agent for the terminal",
		Long: `Krusty is an interactive coding agent. It streams model responses,
proposes tool calls to read and change your project, and asks for
approval before anything destructive runs. Use plan mode to sketch
work before executing it.`,
		RunE:          runApp,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model to use")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "provider to use (gemini or ollama)")
	rootCmd.Flags().BoolVar(&flagAutonomous, "autonomous", false, "run tool calls without asking for approval")
	rootCmd.Flags().BoolVar(&flagPlan, "plan", false, "start in plan mode")
	rootCmd.Flags().StringVar(&flagResume, "resume", "", "resume a saved session by id")
	rootCmd.Flags().StringVarP(&flagPrompt, "prompt", "p", "", "run a single prompt and exit")

	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newCompactCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("krusty version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagModel != "" {
		cfg.Model.Name = flagModel
	}
	if flagProvider != "" {
		cfg.API.ActiveProvider = flagProvider
	}
	if flagAutonomous {
		cfg.Permission.Mode = "autonomous"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging routes logs to a file in the data directory so they never
// interleave with terminal output.
func initLogging(cfg *config.Config) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		if err := logging.EnableFileLogging(cfg.Logging.File, level); err != nil {
			logging.Configure(level, os.Stderr)
		}
		return
	}
	if dir, err := config.DataDir(cfg); err == nil {
		if err := logging.EnableFileLogging(dir, level); err == nil {
			return
		}
	}
	logging.Configure(level, os.Stderr)
}
