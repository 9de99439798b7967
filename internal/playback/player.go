// Package playback drives a media element and keeps the annotation overlay
// in step with its clock.
package playback

import (
	"errors"
	"sync"

	"github.com/example/trafficwatch/internal/models"
)

// State of the player
type State string

const (
	StateLoading State = "loading"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
)

// Media events the player listens to
type Event string

const (
	EventCanPlay    Event = "canplay"
	EventTimeUpdate Event = "timeupdate"
	EventEnded      Event = "ended"
)

// SkipSeconds is how far the skip controls jump
const SkipSeconds = 10.0

var (
	// ErrLoading is returned by controls used before the media can play
	ErrLoading = errors.New("media is still loading")
	// ErrClosed is returned once the player has been torn down
	ErrClosed = errors.New("player is closed")
)

// Media is the element being played. Subscribe returns a func that removes
// the handler again.
type Media interface {
	Load(src string) error
	Play() error
	Pause()
	Seek(seconds float64)
	CurrentTime() float64
	Duration() float64
	Subscribe(event Event, fn func()) (unsubscribe func())
}

// Size is the rendered size of the video surface in pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Frame is the overlay for one moment of playback
type Frame struct {
	Time  float64 `json:"time"`
	Boxes []Box   `json:"boxes"`
}

// Status is a point-in-time view of the player
type Status struct {
	State       State   `json:"state"`
	Source      string  `json:"source"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
}

// Player owns the subscriptions to one media element
type Player struct {
	media Media

	mu        sync.Mutex
	state     State
	source    string
	marks     []models.AnnotationMark
	size      Size
	gen       uint64
	unsubs    []func()
	listeners []func(Frame)
	closed    bool
}

// NewPlayer wraps a media element. Nothing is loaded until SetSource.
func NewPlayer(media Media, size Size) *Player {
	return &Player{media: media, state: StateLoading, size: size}
}

// OnOverlay registers a listener for every recomputed overlay
func (p *Player) OnOverlay(fn func(Frame)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// SetSource loads a new source with its marks. Handlers of the previous
// source are released first and anything they still deliver is ignored.
func (p *Player) SetSource(src string, marks []models.AnnotationMark) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.gen++
	gen := p.gen
	old := p.unsubs
	p.unsubs = nil
	p.state = StateLoading
	p.source = src
	p.marks = append([]models.AnnotationMark(nil), marks...)
	p.mu.Unlock()

	for _, unsub := range old {
		unsub()
	}

	unsubs := []func(){
		p.media.Subscribe(EventCanPlay, func() { p.onCanPlay(gen) }),
		p.media.Subscribe(EventTimeUpdate, func() { p.onTimeUpdate(gen) }),
		p.media.Subscribe(EventEnded, func() { p.onEnded(gen) }),
	}

	p.mu.Lock()
	if gen != p.gen {
		// replaced or closed while subscribing
		p.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		return nil
	}
	p.unsubs = unsubs
	p.mu.Unlock()

	return p.media.Load(src)
}

// SetSize updates the rendered size used to scale boxes
func (p *Player) SetSize(size Size) {
	p.mu.Lock()
	p.size = size
	p.mu.Unlock()
}

// Toggle flips between playing and paused
func (p *Player) Toggle() error {
	state, err := p.ready()
	if err != nil {
		return err
	}
	if state == StatePlaying {
		return p.Pause()
	}
	return p.Play()
}

// Play starts playback
func (p *Player) Play() error {
	if _, err := p.ready(); err != nil {
		return err
	}
	if err := p.media.Play(); err != nil {
		return err
	}
	p.setState(StatePlaying)
	return nil
}

// Pause stops playback
func (p *Player) Pause() error {
	if _, err := p.ready(); err != nil {
		return err
	}
	p.media.Pause()
	p.setState(StatePaused)
	return nil
}

// Skip moves the clock by delta seconds, clamped to the media bounds
func (p *Player) Skip(delta float64) error {
	if _, err := p.ready(); err != nil {
		return err
	}
	p.media.Seek(p.clamp(p.media.CurrentTime() + delta))
	return nil
}

// Seek jumps to an absolute position
func (p *Player) Seek(seconds float64) error {
	if _, err := p.ready(); err != nil {
		return err
	}
	p.media.Seek(p.clamp(seconds))
	return nil
}

// Status reports the player state and media clock
func (p *Player) Status() Status {
	p.mu.Lock()
	st := Status{State: p.state, Source: p.source}
	p.mu.Unlock()
	st.CurrentTime = p.media.CurrentTime()
	st.Duration = p.media.Duration()
	return st
}

// Overlay computes the overlay for the current media time
func (p *Player) Overlay() Frame {
	t := p.media.CurrentTime()
	p.mu.Lock()
	defer p.mu.Unlock()
	return Frame{Time: t, Boxes: Layout(ActiveMarks(p.marks, t), p.size)}
}

// Close releases every subscription. Further events are ignored.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	old := p.unsubs
	p.unsubs = nil
	p.listeners = nil
	p.mu.Unlock()

	for _, unsub := range old {
		unsub()
	}
}

func (p *Player) ready() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	if p.state == StateLoading {
		return "", ErrLoading
	}
	return p.state, nil
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	if !p.closed && p.state != StateLoading {
		p.state = s
	}
	p.mu.Unlock()
}

func (p *Player) clamp(t float64) float64 {
	if t < 0 {
		return 0
	}
	if d := p.media.Duration(); d > 0 && t > d {
		return d
	}
	return t
}

func (p *Player) onCanPlay(gen uint64) {
	p.mu.Lock()
	if gen == p.gen && p.state == StateLoading {
		p.state = StatePaused
	}
	p.mu.Unlock()
}

func (p *Player) onEnded(gen uint64) {
	p.mu.Lock()
	if gen == p.gen && p.state == StatePlaying {
		p.state = StatePaused
	}
	p.mu.Unlock()
}

func (p *Player) onTimeUpdate(gen uint64) {
	t := p.media.CurrentTime()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	frame := Frame{Time: t, Boxes: Layout(ActiveMarks(p.marks, t), p.size)}
	listeners := append([]func(Frame){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(frame)
	}
}
