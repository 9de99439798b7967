package intake

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// manualTicker fires only when the test says so
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.once.Do(func() { close(m.stopped) }) }

// fire delivers one tick, reporting false if the simulation is gone
func (m *manualTicker) fire() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-m.stopped:
		return false
	case <-time.After(time.Second):
		return false
	}
}

type recorder struct {
	mu       sync.Mutex
	progress []Session
	accepted []Upload
	done     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 4)}
}

func (r *recorder) onProgress(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, s)
}

func (r *recorder) onAccepted(u Upload) {
	r.mu.Lock()
	r.accepted = append(r.accepted, u)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func testUpload(name string, size uint64, mimeType string) Upload {
	return Upload{
		Candidate: Candidate{Name: name, SizeBytes: size, MIMEType: mimeType},
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("data")), nil
		},
	}
}

func newTestIntake(cfg Config, rec *recorder) (*Intake, chan *manualTicker) {
	tickers := make(chan *manualTicker, 4)
	in := New(cfg,
		WithTicker(func(time.Duration) Ticker {
			t := newManualTicker()
			tickers <- t
			return t
		}),
		OnProgress(rec.onProgress),
		OnAccepted(rec.onAccepted),
	)
	return in, tickers
}

func TestSelectRejectsOversizedFile(t *testing.T) {
	rec := newRecorder()
	in, tickers := newTestIntake(Config{MaxSizeMB: 100}, rec)

	s, err := in.Select(testUpload("big.mp4", 100*1024*1024+1, "video/mp4"))
	if err == nil {
		t.Fatal("expected rejection for oversized file")
	}
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if s.State != StateRejected {
		t.Errorf("expected rejected state, got %s", s.State)
	}
	if s.ProgressPercent != 0 {
		t.Errorf("rejected session must have zero progress, got %d", s.ProgressPercent)
	}
	if !strings.Contains(s.RejectionReason, "100MB") {
		t.Errorf("reason should name the limit, got %q", s.RejectionReason)
	}
	if len(tickers) != 0 {
		t.Error("progress simulation must not start for a rejected file")
	}
}

func TestSelectRejectionNamesConfiguredLimit(t *testing.T) {
	in := New(Config{MaxSizeMB: 7})

	s, _ := in.Select(testUpload("clip.mp4", 8*1024*1024, "video/mp4"))
	if s.RejectionReason != "File size exceeds the 7MB limit" {
		t.Errorf("unexpected reason %q", s.RejectionReason)
	}
}

func TestSelectAcceptsFileAtLimit(t *testing.T) {
	rec := newRecorder()
	in, _ := newTestIntake(Config{MaxSizeMB: 1}, rec)
	defer in.Close()

	s, err := in.Select(testUpload("edge.png", 1024*1024, "image/png"))
	if err != nil {
		t.Fatalf("file exactly at limit should be accepted: %v", err)
	}
	if s.State != StateInProgress {
		t.Errorf("expected in-progress state, got %s", s.State)
	}
}

func TestSelectRejectsUnsupportedType(t *testing.T) {
	in := New(DefaultConfig())

	s, err := in.Select(testUpload("notes.pdf", 10, "application/pdf"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if !strings.Contains(s.RejectionReason, "application/pdf") {
		t.Errorf("reason should name the type, got %q", s.RejectionReason)
	}
}

func TestProgressIsMonotonicAndAcceptedOnce(t *testing.T) {
	rec := newRecorder()
	in, tickers := newTestIntake(DefaultConfig(), rec)

	if _, err := in.Select(testUpload("road.mp4", 2048, "video/mp4")); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	ticker := <-tickers

	for i := 0; i < 20; i++ {
		if !ticker.fire() {
			t.Fatalf("simulation stopped early after %d ticks", i)
		}
	}

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("accepted callback never fired")
	}

	if ticker.fire() {
		t.Error("simulation kept ticking after completion")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	last := -1
	for _, s := range rec.progress {
		if s.ProgressPercent < last {
			t.Fatalf("progress went backwards: %d after %d", s.ProgressPercent, last)
		}
		last = s.ProgressPercent
	}
	if last != 100 {
		t.Errorf("expected progress to end at 100, got %d", last)
	}
	if final := rec.progress[len(rec.progress)-1]; final.State != StateComplete {
		t.Errorf("expected complete state at 100, got %s", final.State)
	}
	if len(rec.accepted) != 1 {
		t.Errorf("expected exactly one accepted callback, got %d", len(rec.accepted))
	}
	if rec.accepted[0].Name != "road.mp4" {
		t.Errorf("unexpected accepted file %q", rec.accepted[0].Name)
	}
}

func TestRemoveResetsSession(t *testing.T) {
	rec := newRecorder()
	in, tickers := newTestIntake(DefaultConfig(), rec)

	in.Select(testUpload("road.mp4", 2048, "video/mp4"))
	ticker := <-tickers
	ticker.fire()

	s := in.Remove()
	if s.State != StateEmpty || s.ProgressPercent != 0 || s.RejectionReason != "" || s.Candidate != nil {
		t.Errorf("expected empty session after remove, got %+v", s)
	}

	rec.mu.Lock()
	before := len(rec.progress)
	rec.mu.Unlock()

	ticker.fire()

	rec.mu.Lock()
	after := len(rec.progress)
	rec.mu.Unlock()
	if after != before {
		t.Error("removed session should not report progress")
	}
	if s := in.Snapshot(); s.State != StateEmpty {
		t.Errorf("session changed after remove: %+v", s)
	}
	if _, ok := in.Upload(); ok {
		t.Error("upload should be cleared after remove")
	}
}

func TestRemoveWaitsForAcceptedHandOff(t *testing.T) {
	tickers := make(chan *manualTicker, 1)
	removed := make(chan Session, 1)
	accepted := make(chan State, 1)

	var in *Intake
	in = New(Config{MaxSizeMB: 1, Step: 100, Interval: time.Millisecond},
		WithTicker(func(time.Duration) Ticker {
			t := newManualTicker()
			tickers <- t
			return t
		}),
		OnProgress(func(s Session) {
			if s.State != StateComplete {
				return
			}
			go func() { removed <- in.Remove() }()
			time.Sleep(20 * time.Millisecond)
		}),
		OnAccepted(func(Upload) {
			accepted <- in.Snapshot().State
		}),
	)

	if _, err := in.Select(testUpload("road.mp4", 2048, "video/mp4")); err != nil {
		t.Fatal(err)
	}
	(<-tickers).fire()

	select {
	case state := <-accepted:
		if state != StateComplete {
			t.Errorf("accepted upload saw a %s session", state)
		}
	case <-time.After(time.Second):
		t.Fatal("upload was never handed off")
	}
	if s := <-removed; s.State != StateEmpty {
		t.Errorf("expected empty session after remove, got %+v", s)
	}
}

func TestRemoveClearsRejection(t *testing.T) {
	in := New(DefaultConfig())
	in.Select(testUpload("notes.txt", 10, "text/plain"))

	s := in.Remove()
	if s.State != StateEmpty || s.RejectionReason != "" {
		t.Errorf("expected rejection to be cleared, got %+v", s)
	}
}

func TestSelectReplacesRunningSession(t *testing.T) {
	rec := newRecorder()
	in, tickers := newTestIntake(DefaultConfig(), rec)
	defer in.Close()

	in.Select(testUpload("first.mp4", 2048, "video/mp4"))
	first := <-tickers
	first.fire()

	in.Select(testUpload("second.mp4", 2048, "video/mp4"))
	<-tickers

	first.fire()

	s := in.Snapshot()
	if s.Candidate == nil || s.Candidate.Name != "second.mp4" {
		t.Errorf("expected second file to be active, got %+v", s.Candidate)
	}
	if s.ProgressPercent != 0 {
		t.Errorf("new session should restart progress, got %d", s.ProgressPercent)
	}
}

func TestTypeByName(t *testing.T) {
	tests := map[string]string{
		"clip.mp4":     "video/mp4",
		"CLIP.MOV":     "video/quicktime",
		"crash.avi":    "video/avi",
		"scene.JPG":    "image/jpeg",
		"frame.png":    "image/png",
		"no-extension": "application/octet-stream",
	}
	for name, want := range tests {
		if got := TypeByName(name); got != want {
			t.Errorf("TypeByName(%q) = %q, want %q", name, got, want)
		}
	}

	cfg := DefaultConfig()
	for _, name := range []string{"clip.mp4", "crash.avi", "clip.mov", "a.jpeg", "b.png"} {
		in := New(cfg)
		if err := in.Validate(Candidate{Name: name, SizeBytes: 1, MIMEType: TypeByName(name)}); err != nil {
			t.Errorf("%s should be accepted by default: %v", name, err)
		}
		in.Close()
	}
}
