// Package cmd holds the twctl commands. They drive the same workspace,
// playback and theme packages the dashboard server uses, without a server.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/trafficwatch/internal/config"
	"github.com/example/trafficwatch/internal/logging"
)

var (
	configPath   string
	backendURL   string
	outputFormat string
	timeout      time.Duration
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "twctl",
	Short: "twctl - traffic violation analysis from the command line",
	Long: `twctl submits evidence to the detection backend and prints the results
the dashboard would show.

Examples:
  # Analyze a clip on the speed page
  twctl analyze --category speed highway.mp4

  # Analyze and export a DOCX report
  twctl analyze --category road-sign --report signs.docx clip.mp4

  # Submit a sample fraud scenario
  twctl fraud --scenario two_vehicle_fraudulent

  # Step through the overlay of a demo clip
  twctl playback --sample accident --step 0.5

  # Flip the saved theme
  twctl theme toggle
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "text" && outputFormat != "json" {
			return fmt.Errorf("unknown output format %q (want text or json)", outputFormat)
		}
		logging.Init(logLevel, true, cmd.ErrOrStderr())
		if err := config.LoadConfig(configPath); err != nil {
			return err
		}
		if backendURL != "" {
			config.AppConfig.Backend.BaseURL = backendURL
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("TW_CONFIG", "trafficwatch.json"), "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&backendURL, "url", getEnvOrDefault("TW_BACKEND_URL", ""), "Detection backend URL (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for an analysis")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")

	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(fraudCmd)
	rootCmd.AddCommand(playbackCmd)
	rootCmd.AddCommand(themeCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
