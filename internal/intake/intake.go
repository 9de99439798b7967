// Package intake validates a selected evidence file and drives the upload
// progress signal until the file is handed to the caller.
package intake

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/config"
)

// State is the lifecycle stage of an upload session
type State string

const (
	StateEmpty      State = "empty"
	StateRejected   State = "rejected"
	StateInProgress State = "in_progress"
	StateComplete   State = "complete"
)

var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Candidate is the user-selected file as described by the browser
type Candidate struct {
	Name      string `json:"name"`
	SizeBytes uint64 `json:"sizeBytes"`
	MIMEType  string `json:"mimeType"`
}

// Upload is a candidate plus access to its content. Open is valid from
// selection onwards, not only after the session completes.
type Upload struct {
	Candidate
	Open func() (io.ReadCloser, error) `json:"-"`
}

// Session is a snapshot of the current upload
type Session struct {
	Candidate       *Candidate `json:"candidate,omitempty"`
	ProgressPercent int        `json:"progressPercent"`
	State           State      `json:"state"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
}

// RejectionError carries the user-facing reason for a rejected file
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }
func (e *RejectionError) Unwrap() error { return e.Kind }

// Config holds the validation limits and simulated progress cadence
type Config struct {
	MaxSizeMB     int
	AcceptedTypes []string
	Step          int
	Interval      time.Duration
}

// DefaultConfig returns a 100MB limit, the video and image types the
// detectors accept and a +5 every 100ms progress sequence.
func DefaultConfig() Config {
	return Config{
		MaxSizeMB:     100,
		AcceptedTypes: []string{"video/mp4", "video/avi", "video/quicktime", "image/jpeg", "image/png"},
		Step:          5,
		Interval:      100 * time.Millisecond,
	}
}

// FromConfig converts the intake section of the application settings
func FromConfig(c config.IntakeConfig) Config {
	return Config{
		MaxSizeMB:     c.MaxSizeMB,
		AcceptedTypes: c.AcceptedTypes,
		Step:          c.ProgressStep,
		Interval:      time.Duration(c.ProgressIntervalMs) * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = def.MaxSizeMB
	}
	if len(c.AcceptedTypes) == 0 {
		c.AcceptedTypes = def.AcceptedTypes
	}
	if c.Step <= 0 {
		c.Step = def.Step
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	return c
}

// Ticker is the progress clock. Real transfer progress can be plugged in by
// supplying a ticker that fires per received chunk.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Option configures an Intake
type Option func(*Intake)

// WithTicker replaces the wall-clock ticker
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(i *Intake) { i.newTicker = newTicker }
}

// OnProgress registers an observer for every session change during simulation
func OnProgress(fn func(Session)) Option {
	return func(i *Intake) { i.onProgress = append(i.onProgress, fn) }
}

// OnRejected registers an observer for rejected selections
func OnRejected(fn func(Session)) Option {
	return func(i *Intake) { i.onRejected = append(i.onRejected, fn) }
}

// OnAccepted sets the callback that receives the file once progress hits 100
func OnAccepted(fn func(Upload)) Option {
	return func(i *Intake) { i.onAccepted = fn }
}

// Intake holds at most one upload session at a time
type Intake struct {
	cfg       Config
	newTicker func(time.Duration) Ticker

	onProgress []func(Session)
	onRejected []func(Session)
	onAccepted func(Upload)

	// emit serialises observer delivery so a replaced session never
	// reports after its successor
	emit sync.Mutex
	mu   sync.Mutex

	session Session
	upload  *Upload
	gen     uint64
	stop    chan struct{}
}

// New creates an empty intake
func New(cfg Config, opts ...Option) *Intake {
	i := &Intake{
		cfg: cfg.withDefaults(),
		newTicker: func(d time.Duration) Ticker {
			return timeTicker{t: time.NewTicker(d)}
		},
		session: Session{State: StateEmpty},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Config returns the effective limits
func (i *Intake) Config() Config {
	return i.cfg
}

// Extensions the system MIME table often lacks
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/avi",
	".mov":  "video/quicktime",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// TypeByName guesses a MIME type from a file name. Unknown extensions
// give application/octet-stream.
func TypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if guess := mime.TypeByExtension(ext); guess != "" {
		if mt, _, err := mime.ParseMediaType(guess); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}

// Validate checks a candidate against the size and type limits
func (i *Intake) Validate(c Candidate) error {
	limit := uint64(i.cfg.MaxSizeMB) * 1024 * 1024
	if c.SizeBytes > limit {
		return &RejectionError{
			Kind:   ErrFileTooLarge,
			Reason: fmt.Sprintf("File size exceeds the %dMB limit", i.cfg.MaxSizeMB),
		}
	}

	mimeType := strings.ToLower(strings.TrimSpace(c.MIMEType))
	for _, accepted := range i.cfg.AcceptedTypes {
		if strings.EqualFold(accepted, mimeType) {
			return nil
		}
	}
	shown := c.MIMEType
	if shown == "" {
		shown = "unknown"
	}
	return &RejectionError{
		Kind:   ErrUnsupportedType,
		Reason: fmt.Sprintf("File type %s is not supported. Accepted types: %s", shown, strings.Join(i.cfg.AcceptedTypes, ", ")),
	}
}

// Select replaces the current session with a new selection. A rejected file
// never starts the progress simulation; the returned error is a *RejectionError.
func (i *Intake) Select(up Upload) (Session, error) {
	i.emit.Lock()
	defer i.emit.Unlock()

	i.mu.Lock()
	i.halt()

	candidate := up.Candidate
	if err := i.Validate(candidate); err != nil {
		var rej *RejectionError
		errors.As(err, &rej)
		i.session = Session{
			Candidate:       &candidate,
			State:           StateRejected,
			RejectionReason: rej.Reason,
		}
		snap := i.snapshotLocked()
		i.mu.Unlock()

		log.Info().Str("file", candidate.Name).Str("reason", rej.Reason).Msg("Upload rejected")
		for _, fn := range i.onRejected {
			fn(snap)
		}
		return snap, err
	}

	i.upload = &up
	i.session = Session{Candidate: &candidate, State: StateInProgress}
	stop := make(chan struct{})
	i.stop = stop
	gen := i.gen
	ticker := i.newTicker(i.cfg.Interval)
	snap := i.snapshotLocked()
	i.mu.Unlock()

	log.Debug().Str("file", candidate.Name).Uint64("size", candidate.SizeBytes).Msg("Upload accepted, simulating progress")
	for _, fn := range i.onProgress {
		fn(snap)
	}

	go i.simulate(gen, stop, ticker, up)
	return snap, nil
}

// Remove resets the session to empty and stops any running simulation
func (i *Intake) Remove() Session {
	i.emit.Lock()
	defer i.emit.Unlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	i.halt()
	i.session = Session{State: StateEmpty}
	return i.snapshotLocked()
}

// Close stops the simulation without touching the session
func (i *Intake) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.halt()
}

// Snapshot returns a copy of the current session
func (i *Intake) Snapshot() Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked()
}

// Upload returns the active upload, if one was accepted
func (i *Intake) Upload() (Upload, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.upload == nil {
		return Upload{}, false
	}
	return *i.upload, true
}

func (i *Intake) halt() {
	i.gen++
	if i.stop != nil {
		close(i.stop)
		i.stop = nil
	}
	i.upload = nil
}

func (i *Intake) snapshotLocked() Session {
	s := i.session
	if s.Candidate != nil {
		c := *s.Candidate
		s.Candidate = &c
	}
	return s
}

func (i *Intake) simulate(gen uint64, stop <-chan struct{}, ticker Ticker, up Upload) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			done, ok := i.tick(gen, up)
			if !ok || done {
				return
			}
		}
	}
}

// tick advances the session owned by gen; ok is false once that session
// has been replaced or removed. The accepted callback runs under emit so a
// Remove cannot slip in between completion and hand-off.
func (i *Intake) tick(gen uint64, up Upload) (done, ok bool) {
	i.emit.Lock()
	defer i.emit.Unlock()

	i.mu.Lock()
	if gen != i.gen || i.session.State != StateInProgress {
		i.mu.Unlock()
		return false, false
	}
	i.session.ProgressPercent += i.cfg.Step
	if i.session.ProgressPercent >= 100 {
		i.session.ProgressPercent = 100
		i.session.State = StateComplete
		done = true
		i.stop = nil
	}
	snap := i.snapshotLocked()
	i.mu.Unlock()

	for _, fn := range i.onProgress {
		fn(snap)
	}
	if done {
		log.Info().Str("file", up.Name).Msg("Upload complete")
		if i.onAccepted != nil {
			i.onAccepted(up)
		}
	}
	return done, true
}
