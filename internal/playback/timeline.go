package playback

import (
	"errors"
	"sync"
)

type subscription struct {
	id int
	fn func()
}

// Timeline is a Media backed by a virtual clock. It plays nothing; time only
// moves when Advance or Seek is called.
type Timeline struct {
	mu       sync.Mutex
	duration float64
	current  float64
	playing  bool
	source   string
	nextID   int
	subs     map[Event][]subscription
}

// NewTimeline creates a timeline of the given length in seconds
func NewTimeline(duration float64) *Timeline {
	return &Timeline{duration: duration, subs: make(map[Event][]subscription)}
}

// Load resets the clock for a new source. The timeline is not playable
// until Ready is called.
func (t *Timeline) Load(src string) error {
	if src == "" {
		return errors.New("empty media source")
	}
	t.mu.Lock()
	t.source = src
	t.current = 0
	t.playing = false
	t.mu.Unlock()
	return nil
}

// Ready announces that the loaded source can play
func (t *Timeline) Ready() {
	t.emit(EventCanPlay)
}

// Play starts the clock
func (t *Timeline) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.source == "" {
		return errors.New("no media loaded")
	}
	t.playing = true
	return nil
}

// Pause stops the clock
func (t *Timeline) Pause() {
	t.mu.Lock()
	t.playing = false
	t.mu.Unlock()
}

// Seek moves the clock and fires a time update
func (t *Timeline) Seek(seconds float64) {
	t.mu.Lock()
	t.current = t.bound(seconds)
	t.mu.Unlock()
	t.emit(EventTimeUpdate)
}

// Advance moves a playing clock forward by dt seconds. Reaching the end
// stops playback and fires ended after the last time update.
func (t *Timeline) Advance(dt float64) {
	t.mu.Lock()
	if !t.playing {
		t.mu.Unlock()
		return
	}
	t.current = t.bound(t.current + dt)
	ended := t.duration > 0 && t.current >= t.duration
	if ended {
		t.playing = false
	}
	t.mu.Unlock()

	t.emit(EventTimeUpdate)
	if ended {
		t.emit(EventEnded)
	}
}

// Playing reports whether the clock is running
func (t *Timeline) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// CurrentTime returns the clock position in seconds
func (t *Timeline) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Duration returns the timeline length in seconds
func (t *Timeline) Duration() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Subscribe adds a handler for event
func (t *Timeline) Subscribe(event Event, fn func()) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs[event] = append(t.subs[event], subscription{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			list := t.subs[event]
			for i, s := range list {
				if s.id == id {
					t.subs[event] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Subscribers counts the handlers attached to event
func (t *Timeline) Subscribers(event Event) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[event])
}

func (t *Timeline) bound(s float64) float64 {
	if s < 0 {
		return 0
	}
	if t.duration > 0 && s > t.duration {
		return t.duration
	}
	return s
}

func (t *Timeline) emit(event Event) {
	t.mu.Lock()
	subs := append([]subscription(nil), t.subs[event]...)
	t.mu.Unlock()
	for _, s := range subs {
		s.fn()
	}
}
