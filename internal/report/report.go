// Package report exports the analysis shown on a page as a document
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/measurement"

	"github.com/example/trafficwatch/internal/playback"
	"github.com/example/trafficwatch/internal/workspace"
)

// Export formats
const (
	FormatText = "txt"
	FormatDOCX = "docx"
)

var (
	ErrUnknownFormat = errors.New("unknown report format")
	ErrNoResult      = errors.New("no analysis result to report")
)

var (
	licenseOnce sync.Once
	licenseErr  error
)

// SetLicense registers the unioffice metered key. Only the first call has
// any effect.
func SetLicense(key string) error {
	licenseOnce.Do(func() {
		if key == "" {
			return
		}
		licenseErr = license.SetMeteredKey(key)
	})
	return licenseErr
}

// ContentType returns the MIME type of a format
func ContentType(format string) (string, error) {
	switch format {
	case FormatText, "":
		return "text/plain; charset=utf-8", nil
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Filename suggests a download name for a view
func Filename(v workspace.View, format string) string {
	if format == "" {
		format = FormatText
	}
	return fmt.Sprintf("%s-report-%s.%s", v.Category, v.ID[:min(8, len(v.ID))], format)
}

// Write renders the view in the given format
func Write(w io.Writer, v workspace.View, format string, now time.Time) error {
	if v.Result == nil || v.Summary == nil {
		return ErrNoResult
	}
	switch format {
	case FormatText, "":
		return writeText(w, v, now)
	case FormatDOCX:
		return writeDOCX(w, v, now)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// block is one titled group of lines shared by every format
type block struct {
	title string
	lines []string
}

func blocks(v workspace.View, now time.Time) []block {
	head := block{title: "Details", lines: []string{
		"Category: " + v.Title,
		"Generated: " + now.Format(time.RFC1123),
		"Status: " + string(v.Result.Status),
		"Endpoint: " + v.Result.Endpoint,
	}}
	if c := v.Session.Candidate; c != nil {
		head.lines = append(head.lines, fmt.Sprintf("File: %s (%s, %d bytes)", c.Name, c.MIMEType, c.SizeBytes))
	}
	if v.Summary.MediaURL != "" {
		head.lines = append(head.lines, "Annotated media: "+v.Summary.MediaURL)
	}
	out := []block{head}

	if v.Summary.Failure != "" {
		return append(out, block{title: "Analysis Failed", lines: []string{v.Summary.Failure}})
	}
	for _, s := range v.Summary.Sections {
		out = append(out, block{title: s.Title, lines: s.Lines})
	}
	if len(v.Marks) > 0 {
		b := block{title: "Timeline"}
		for _, m := range v.Marks {
			b.lines = append(b.lines, fmt.Sprintf("%s  %s  %s", playback.FormatTime(m.TimeSeconds), m.Category, m.Description))
		}
		out = append(out, b)
	}
	return out
}

func writeText(w io.Writer, v workspace.View, now time.Time) error {
	var b strings.Builder
	title := v.Summary.Title + " Report"
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n")
	for _, blk := range blocks(v, now) {
		b.WriteString("\n" + blk.title + "\n")
		b.WriteString(strings.Repeat("-", len(blk.title)) + "\n")
		for _, line := range blk.lines {
			b.WriteString(line + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDOCX(w io.Writer, v workspace.View, now time.Time) error {
	doc := document.New()
	doc.CoreProperties.SetTitle(v.Summary.Title + " Report")
	doc.CoreProperties.SetDescription(fmt.Sprintf("Analysis %s for workspace %s", v.Result.ID, v.ID))

	heading := func(text string, size float64) {
		run := doc.AddParagraph().AddRun()
		run.Properties().SetBold(true)
		run.Properties().SetSize(measurement.Distance(size) * measurement.Point)
		run.AddText(text)
	}

	heading(v.Summary.Title+" Report", 18)
	for _, blk := range blocks(v, now) {
		heading(blk.title, 13)
		for _, line := range blk.lines {
			doc.AddParagraph().AddRun().AddText(line)
		}
	}

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return fmt.Errorf("failed to build document: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
