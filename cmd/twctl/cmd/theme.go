package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/trafficwatch/internal/config"
	"github.com/example/trafficwatch/internal/theme"
)

var themeCmd = &cobra.Command{
	Use:       "theme [show|toggle]",
	Short:     "Show or flip the saved light/dark preference",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"show", "toggle"},
	RunE:      runTheme,
}

func runTheme(cmd *cobra.Command, args []string) error {
	store := theme.NewStore(
		theme.FilePreferences{Path: config.AppConfig.Theme.PrefsFile},
		config.AppConfig.Theme.SystemDefault == string(theme.Dark),
	)

	mode := store.Mode()
	if len(args) == 1 && args[0] == "toggle" {
		var err error
		if mode, err = store.Toggle(); err != nil {
			return fmt.Errorf("theme switched to %s but could not be saved: %w", mode, err)
		}
	}

	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"mode": mode, "dark": mode == theme.Dark})
	}
	fmt.Fprintln(cmd.OutOrStdout(), mode)
	return nil
}
