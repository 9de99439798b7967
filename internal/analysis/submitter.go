package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is the lifecycle stage of an analysis result
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one submission. Once it leaves Pending it is
// never changed again.
type Result struct {
	ID          string         `json:"id"`
	Endpoint    string         `json:"endpoint"`
	Shape       string         `json:"shape"`
	Status      Status         `json:"status"`
	Payload     map[string]any `json:"payload,omitempty"`
	ErrorDetail string         `json:"errorDetail,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Observer is notified of every result change a submitter applies
type Observer func(Result)

// SubmitterOption configures a Submitter
type SubmitterOption func(*Submitter)

// WithObserver adds an observer
func WithObserver(fn Observer) SubmitterOption {
	return func(s *Submitter) { s.observers = append(s.observers, fn) }
}

// WithCompletionHook is called with every resolved result, even after
// Detach, together with the call duration
func WithCompletionHook(fn func(Result, time.Duration)) SubmitterOption {
	return func(s *Submitter) { s.completion = fn }
}

// Submitter owns the displayed result of one page. Overlapping submissions
// are independent; whichever resolves last is what the page shows.
type Submitter struct {
	client     Doer
	observers  []Observer
	completion func(Result, time.Duration)

	// emit keeps observer order in step with the stored result
	emit     sync.Mutex
	mu       sync.Mutex
	current  *Result
	detached bool
	inflight sync.WaitGroup
}

// NewSubmitter creates a submitter for one page
func NewSubmitter(client Doer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates req, records a Pending result and starts the call. The
// call outlives ctx cancellation; only Detach stops its result from landing.
func (s *Submitter) Submit(ctx context.Context, req Request) (Result, error) {
	if err := Validate(req); err != nil {
		return Result{}, err
	}

	ep := req.Target()
	pending := Result{
		ID:          uuid.NewString(),
		Endpoint:    ep.Name,
		Shape:       ep.Shape,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}

	if !s.apply(pending) {
		return pending, nil
	}

	callCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		start := time.Now()

		payload, err := s.client.Do(callCtx, req)
		final := resolve(pending, payload, err)

		if s.completion != nil {
			s.completion(final, time.Since(start))
		}
		if err != nil {
			log.Warn().Err(err).Str("endpoint", ep.Name).Str("result_id", final.ID).Msg("Analysis failed")
		} else {
			log.Info().Str("endpoint", ep.Name).Str("result_id", final.ID).Dur("took", time.Since(start)).Msg("Analysis complete")
		}
		s.apply(final)
	}()

	return pending, nil
}

// resolve turns the outcome of a call into a terminal result
func resolve(pending Result, payload map[string]any, err error) Result {
	now := time.Now()
	final := pending
	final.CompletedAt = &now
	final.Payload = payload

	if err != nil {
		final.Status = StatusFailed
		final.ErrorDetail = Detail(err)
		return final
	}
	final.Status = StatusSucceeded
	return final
}

// apply records r as the displayed result unless the page is gone
func (s *Submitter) apply(r Result) bool {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return false
	}
	res := r
	s.current = &res
	s.mu.Unlock()

	for _, fn := range s.observers {
		fn(r)
	}
	return true
}

// Result returns the displayed result, if any request was made
func (s *Submitter) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Result{}, false
	}
	return *s.current, true
}

// Reset clears the displayed result. Calls still in flight may land later.
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Detach drops any result that resolves from now on. In-flight calls are
// left to finish on their own.
func (s *Submitter) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}

// Wait blocks until every call started so far has resolved
func (s *Submitter) Wait() {
	s.inflight.Wait()
}
