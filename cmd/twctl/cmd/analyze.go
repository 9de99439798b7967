package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/trafficwatch/internal/intake"
)

var (
	analyzeCmd = &cobra.Command{
		Use:   "analyze [file]",
		Short: "Upload a clip or image to a category's detector",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeFile,
	}

	analyzeCategory string
	analyzeMIME     string
	analyzeReport   string
	analyzeQuiet    bool
)

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeCategory, "category", "c", "", "Category page (see twctl categories)")
	analyzeCmd.Flags().StringVar(&analyzeMIME, "mime", "", "MIME type of the file (guessed from the extension by default)")
	analyzeCmd.Flags().StringVarP(&analyzeReport, "report", "r", "", "Also write a report (.txt or .docx)")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Do not print upload progress")
	analyzeCmd.MarkFlagRequired("category")
}

func analyzeFile(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	mimeType := analyzeMIME
	if mimeType == "" {
		mimeType = intake.TypeByName(path)
	}

	var progress io.Writer
	if !analyzeQuiet {
		progress = cmd.ErrOrStderr()
	}
	manager := newManager(progress)
	defer manager.CloseAll()

	ws, err := manager.Create(analyzeCategory)
	if err != nil {
		return err
	}

	up := intake.Upload{
		Candidate: intake.Candidate{Name: filepath.Base(path), SizeBytes: uint64(info.Size()), MIMEType: mimeType},
		Open:      func() (io.ReadCloser, error) { return os.Open(path) },
	}
	if _, err := ws.SelectFile(up); err != nil {
		var rej *intake.RejectionError
		if errors.As(err, &rej) {
			return fmt.Errorf("file rejected: %s", rej.Reason)
		}
		return err
	}

	return finish(cmd, ws, analyzeReport)
}
