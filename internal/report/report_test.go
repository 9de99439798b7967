package report

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/unidoc/unioffice/document"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/models"
	"github.com/example/trafficwatch/internal/render"
	"github.com/example/trafficwatch/internal/workspace"
)

func sampleView() workspace.View {
	result := analysis.Result{ID: "r1", Endpoint: analysis.EndpointRoadSign, Shape: render.ShapeRoadSign, Status: analysis.StatusSucceeded}
	summary := render.Summary{
		Shape: render.ShapeRoadSign,
		Title: "Road Sign Detection",
		Sections: []render.Section{
			{Title: "Detections", Lines: []string{"Stop sign detected at 1:05 (confidence: 95.0%)"}},
		},
	}
	return workspace.View{
		ID:       "0f8fad5b-d9cb-469f-a165-70867728950e",
		Category: models.CategoryRoadSign,
		Title:    "Road Sign Detection",
		Session:  intake.Session{Candidate: &intake.Candidate{Name: "clip.mp4", MIMEType: "video/mp4", SizeBytes: 2048}, State: intake.StateComplete, ProgressPercent: 100},
		Result:   &result,
		Summary:  &summary,
		Marks:    []models.AnnotationMark{{TimeSeconds: 65, Category: models.MarkRoadSign, Description: "Stop sign"}},
	}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTextReport(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleView(), FormatText, fixedNow); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Road Sign Detection Report",
		"File: clip.mp4 (video/mp4, 2048 bytes)",
		"Stop sign detected at 1:05 (confidence: 95.0%)",
		"1:05  Road Sign  Stop sign",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestFailureReportHasOnlyFailure(t *testing.T) {
	v := sampleView()
	failed := render.FailureSummary("Upload or processing failed.")
	v.Summary = &failed
	v.Marks = nil

	var buf bytes.Buffer
	if err := Write(&buf, v, FormatText, fixedNow); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Upload or processing failed.") || strings.Contains(out, "Detections") {
		t.Errorf("unexpected failure report:\n%s", out)
	}
}

func TestWriteErrors(t *testing.T) {
	v := sampleView()
	if err := Write(&bytes.Buffer{}, v, "pdf", fixedNow); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
	v.Result = nil
	if err := Write(&bytes.Buffer{}, v, FormatText, fixedNow); !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}
	if _, err := ContentType("pdf"); err == nil {
		t.Error("expected content type error")
	}
	if got := Filename(sampleView(), FormatDOCX); got != "road-sign-report-0f8fad5b.docx" {
		t.Errorf("unexpected filename %q", got)
	}
}

func TestDOCXReport(t *testing.T) {
	key := os.Getenv("UNIDOC_LICENSE_KEY")
	if key == "" {
		t.Skip("UNIDOC_LICENSE_KEY not set")
	}
	if err := SetLicense(key); err != nil {
		t.Fatalf("license: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, sampleView(), FormatDOCX, fixedNow); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	doc, err := document.Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	var text strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			text.WriteString(run.Text())
		}
		text.WriteString("\n")
	}
	if !strings.Contains(text.String(), "Stop sign detected at 1:05") {
		t.Errorf("document missing detection line:\n%s", text.String())
	}
}
