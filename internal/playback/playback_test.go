package playback

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/example/trafficwatch/internal/models"
)

func mark(t float64, c models.MarkCategory) models.AnnotationMark {
	return models.AnnotationMark{TimeSeconds: t, Category: c, BoundingBox: box(0.25, 0.5, 0.5, 0.25)}
}

func TestActiveMarksWindow(t *testing.T) {
	marks := []models.AnnotationMark{mark(2.5, models.MarkAccident), mark(10.0, models.MarkSpeed)}

	active := ActiveMarks(marks, 2.6)
	if len(active) != 1 || active[0].TimeSeconds != 2.5 {
		t.Fatalf("expected only the 2.5s mark, got %+v", active)
	}

	if got := ActiveMarks(marks, 9.5); len(got) != 0 {
		t.Errorf("mark exactly 0.5s away must not show, got %+v", got)
	}
	if got := ActiveMarks(marks, 9.6); len(got) != 1 {
		t.Errorf("expected the 10s mark at 9.6, got %+v", got)
	}
}

func TestLayoutScalesAndColours(t *testing.T) {
	boxes := Layout([]models.AnnotationMark{mark(1, models.MarkLane), {TimeSeconds: 1, Category: models.MarkSpeed}}, Size{Width: 640, Height: 360})
	if len(boxes) != 1 {
		t.Fatalf("marks without a box are skipped, got %d boxes", len(boxes))
	}
	b := boxes[0]
	if b.X != 160 || b.Y != 180 || b.Width != 320 || b.Height != 90 {
		t.Errorf("unexpected geometry %+v", b)
	}
	if b.Color != "#3B82F6" || b.Label != "Lane" {
		t.Errorf("unexpected style %+v", b)
	}
}

func TestCategoryColor(t *testing.T) {
	tests := map[models.MarkCategory]string{
		models.MarkSpeed:        "#EF4444",
		models.MarkAccident:     "#F59E0B",
		models.MarkLane:         "#3B82F6",
		models.MarkTrafficLight: "#10B981",
		models.MarkRoadSign:     "#8B5CF6",
		"Pedestrian":            "#6B7280",
	}
	for c, want := range tests {
		if got := CategoryColor(c); got != want {
			t.Errorf("CategoryColor(%s) = %s, want %s", c, got, want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	tests := map[float64]string{0: "0:00", 7.9: "0:07", 65: "1:05", 600: "10:00", -3: "0:00"}
	for in, want := range tests {
		if got := FormatTime(in); got != want {
			t.Errorf("FormatTime(%v) = %s, want %s", in, got, want)
		}
	}
}

func newLoadedPlayer(t *testing.T, marks []models.AnnotationMark) (*Player, *Timeline) {
	t.Helper()
	tl := NewTimeline(20)
	p := NewPlayer(tl, Size{Width: 100, Height: 100})
	if err := p.SetSource("clip.mp4", marks); err != nil {
		t.Fatalf("SetSource failed: %v", err)
	}
	return p, tl
}

func TestControlsRejectedWhileLoading(t *testing.T) {
	p, tl := newLoadedPlayer(t, nil)

	for name, control := range map[string]func() error{
		"toggle": p.Toggle,
		"skip":   func() error { return p.Skip(SkipSeconds) },
		"seek":   func() error { return p.Seek(3) },
	} {
		if err := control(); !errors.Is(err, ErrLoading) {
			t.Errorf("%s: expected ErrLoading, got %v", name, err)
		}
	}

	tl.Ready()
	if p.Status().State != StatePaused {
		t.Fatalf("expected paused after canplay, got %s", p.Status().State)
	}
	if err := p.Toggle(); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if p.Status().State != StatePlaying || !tl.Playing() {
		t.Error("expected playing after toggle")
	}
	if err := p.Toggle(); err != nil || p.Status().State != StatePaused {
		t.Errorf("expected paused after second toggle, err=%v", err)
	}
}

func TestSkipClampsToBounds(t *testing.T) {
	p, tl := newLoadedPlayer(t, nil)
	tl.Ready()

	if err := p.Skip(-SkipSeconds); err != nil {
		t.Fatal(err)
	}
	if tl.CurrentTime() != 0 {
		t.Errorf("expected clamp at 0, got %v", tl.CurrentTime())
	}
	_ = p.Seek(15)
	_ = p.Skip(SkipSeconds)
	if tl.CurrentTime() != 20 {
		t.Errorf("expected clamp at duration, got %v", tl.CurrentTime())
	}
}

func TestTimeUpdateDrivesOverlay(t *testing.T) {
	p, tl := newLoadedPlayer(t, []models.AnnotationMark{mark(2.5, models.MarkAccident), mark(10, models.MarkSpeed)})
	var frames []Frame
	p.OnOverlay(func(f Frame) { frames = append(frames, f) })
	tl.Ready()

	_ = p.Play()
	tl.Advance(2.6)
	if len(frames) != 1 || len(frames[0].Boxes) != 1 || frames[0].Boxes[0].Category != models.MarkAccident {
		t.Fatalf("expected the accident mark at 2.6s, got %+v", frames)
	}

	tl.Advance(1)
	if len(frames) != 2 || len(frames[1].Boxes) != 0 {
		t.Errorf("expected an empty overlay at 3.6s, got %+v", frames[1])
	}
}

func TestEndedReturnsToPaused(t *testing.T) {
	p, tl := newLoadedPlayer(t, nil)
	tl.Ready()
	_ = p.Play()

	tl.Advance(25)
	if st := p.Status(); st.State != StatePaused || st.CurrentTime != 20 {
		t.Errorf("expected paused at the end, got %+v", st)
	}
}

func TestSetSourceReleasesOldSubscriptions(t *testing.T) {
	p, tl := newLoadedPlayer(t, []models.AnnotationMark{mark(1, models.MarkLane)})
	if n := tl.Subscribers(EventTimeUpdate); n != 1 {
		t.Fatalf("expected one timeupdate handler, got %d", n)
	}

	if err := p.SetSource("other.mp4", nil); err != nil {
		t.Fatal(err)
	}
	if n := tl.Subscribers(EventTimeUpdate); n != 1 {
		t.Errorf("old handlers must be released, have %d", n)
	}
	if p.Status().State != StateLoading {
		t.Error("new source must start loading")
	}

	p.Close()
	for _, ev := range []Event{EventCanPlay, EventTimeUpdate, EventEnded} {
		if n := tl.Subscribers(ev); n != 0 {
			t.Errorf("%s: %d handlers left after close", ev, n)
		}
	}
	if err := p.Toggle(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRenderPNGDrawsBoxAndLabel(t *testing.T) {
	boxes := Layout([]models.AnnotationMark{mark(0, models.MarkSpeed)}, Size{Width: 200, Height: 200})

	var buf bytes.Buffer
	if err := RenderPNG(&buf, boxes, Size{Width: 200, Height: 200}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	red := color.RGBA{R: 0xEF, G: 0x44, B: 0x44, A: 0xff}
	// box spans (50,100)-(150,150); label tag sits above it
	checks := map[string]image.Point{
		"left edge":   {50, 125},
		"bottom edge": {100, 150},
		"label tag":   {140, 85},
	}
	for name, pt := range checks {
		if got := color.RGBAModel.Convert(img.At(pt.X, pt.Y)); got != red {
			t.Errorf("%s at %v: got %v", name, pt, got)
		}
	}
	if _, _, _, a := img.At(100, 125).RGBA(); a != 0 {
		t.Error("box interior must stay transparent")
	}

	if err := RenderPNG(&buf, nil, Size{}); err == nil {
		t.Error("expected an error for an empty canvas")
	}
}

func TestSamples(t *testing.T) {
	s, ok := SampleFor("accident")
	if !ok || len(s.Marks) != 3 || s.Marks[0].TimeSeconds != 2.5 {
		t.Fatalf("unexpected accident sample %+v", s)
	}
	s.Marks[0].TimeSeconds = 99
	again, _ := SampleFor("accident")
	if again.Marks[0].TimeSeconds != 2.5 {
		t.Error("samples must be copied")
	}
	if len(SampleNames()) != 4 {
		t.Errorf("unexpected sample names %v", SampleNames())
	}
}
