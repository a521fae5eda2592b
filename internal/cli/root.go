package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	loaded, loadErr := LoadConfig()
	if loadErr != nil {
		loaded = &Config{ServerURL: "http://localhost:8080", Output: "text", TokenFile: defaultTokenFile()}
	}
	cfg = loaded

	rootCmd := &cobra.Command{
		Use:   "matchctl",
		Short: "CLI tool for the match sync API",
		Long: `matchctl is a CLI tool for interacting with the match sync JSON API.

It covers match setup, slot claims, rosters, KO toggles, the match timer
and a live view of a match fed by its change stream.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			// Create HTTP client
			client = NewClient(cfg.ServerURL, cfg.Token)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: MATCHCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Session token (env: MATCHCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: MATCHCTL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newGuestCmd())
	rootCmd.AddCommand(newMeCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newMatchCmd())
	rootCmd.AddCommand(newSlotCmd())
	rootCmd.AddCommand(newSpectateCmd())
	rootCmd.AddCommand(newUnitCmd())
	rootCmd.AddCommand(newTimerCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func output(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout())
}
