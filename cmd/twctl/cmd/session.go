package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/config"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/report"
	"github.com/example/trafficwatch/internal/workspace"
)

// newManager builds a workspace manager against the configured backend.
// Upload progress goes to progress when it is not nil.
func newManager(progress io.Writer) *workspace.Manager {
	client := analysis.NewClientFromConfig(config.AppConfig.Backend)
	var opts []workspace.Option
	if progress != nil {
		opts = append(opts, workspace.WithEventSink(func(ev workspace.Event) {
			switch ev.Type {
			case workspace.EventUploadProgress:
				if s, ok := ev.Data.(intake.Session); ok {
					fmt.Fprintf(progress, "\rUploading %3d%%", s.ProgressPercent)
				}
			case workspace.EventUploadComplete:
				fmt.Fprintln(progress, "\rUploading 100%")
			case workspace.EventAnalysisPending:
				fmt.Fprintln(progress, "Waiting for analysis...")
			}
		}))
	}
	return workspace.NewManager(client, intake.FromConfig(config.AppConfig.Intake), opts...)
}

// finish waits for the workspace's result, prints it and writes the
// optional report file. A failed analysis is printed and returned as an
// error.
func finish(cmd *cobra.Command, ws *workspace.Workspace, reportPath string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := ws.AwaitResult(ctx)
	if err != nil {
		return fmt.Errorf("analysis did not finish: %w", err)
	}

	view := ws.View()
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		err = printJSON(out, view)
	} else {
		err = report.Write(out, view, report.FormatText, time.Now())
	}
	if err != nil {
		return err
	}

	if reportPath != "" {
		if err := writeReport(reportPath, view); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", reportPath)
	}

	if result.Status == analysis.StatusFailed {
		return fmt.Errorf("analysis failed: %s", result.ErrorDetail)
	}
	return nil
}

func writeReport(path string, view workspace.View) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, err := report.ContentType(format); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.Write(f, view, format, time.Now()); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
