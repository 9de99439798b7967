// Package workspace ties one category page together: its upload session,
// its analysis result and, for the fraud page, the structured form.
package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/fraudform"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/models"
	"github.com/example/trafficwatch/internal/render"
)

var (
	ErrUnknownCategory = errors.New("unknown violation category")
	ErrNotFound        = errors.New("workspace not found")
	ErrNoForm          = errors.New("category has no structured form")
	ErrNoEndpoint      = errors.New("category has no upload endpoint")
	ErrClosed          = errors.New("workspace is closed")
)

// Event types pushed to page listeners
const (
	EventUploadProgress   = "upload_progress"
	EventUploadRejected   = "upload_rejected"
	EventUploadComplete   = "upload_complete"
	EventUploadRemoved    = "upload_removed"
	EventAnalysisPending  = "analysis_pending"
	EventAnalysisComplete = "analysis_complete"
)

// Event is a change in a workspace
type Event struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspaceId"`
	Data        any    `json:"data,omitempty"`
}

// Archiver keeps accepted uploads and final results
type Archiver interface {
	ArchiveUpload(workspaceID string, up intake.Upload)
	ArchiveResult(workspaceID string, r analysis.Result)
}

// AnalysisEvent is the payload of the analysis events
type AnalysisEvent struct {
	Result  analysis.Result `json:"result"`
	Summary *render.Summary `json:"summary,omitempty"`
}

// View is everything a page displays
type View struct {
	ID        string                  `json:"id"`
	Category  models.Category         `json:"category"`
	Title     string                  `json:"title"`
	CreatedAt time.Time               `json:"createdAt"`
	Session   intake.Session          `json:"session"`
	Result    *analysis.Result        `json:"result,omitempty"`
	Summary   *render.Summary         `json:"summary,omitempty"`
	Marks     []models.AnnotationMark `json:"marks,omitempty"`
	Form      *fraudform.State        `json:"form,omitempty"`
}

// Workspace is the state of one opened category page
type Workspace struct {
	ID        string
	Category  models.Category
	CreatedAt time.Time

	intake    *intake.Intake
	submitter *analysis.Submitter
	form      *fraudform.Form
	sink      func(Event)
	archiver  Archiver

	seq     uint64
	mu      sync.Mutex
	closed  bool
	changed chan struct{}
}

func newWorkspace(id string, category models.Category, client analysis.Doer, cfg intake.Config, o *options) *Workspace {
	ws := &Workspace{
		ID:        id,
		Category:  category,
		CreatedAt: time.Now(),
		sink:      o.sink,
		archiver:  o.archiver,
		changed:   make(chan struct{}),
	}

	subOpts := append([]analysis.SubmitterOption{analysis.WithObserver(ws.onResult)}, o.submitterOpts...)
	ws.submitter = analysis.NewSubmitter(client, subOpts...)

	inOpts := append([]intake.Option{}, o.intakeOpts...)
	inOpts = append(inOpts,
		intake.OnProgress(func(s intake.Session) { ws.publish(EventUploadProgress, s) }),
		intake.OnRejected(func(s intake.Session) { ws.publish(EventUploadRejected, s) }),
		intake.OnAccepted(ws.onAccepted),
	)
	ws.intake = intake.New(cfg, inOpts...)

	if info, ok := category.Info(); ok && info.AcceptsForm {
		ws.form = fraudform.New()
	}
	return ws
}

// SelectFile starts a new upload session, replacing the current one
func (ws *Workspace) SelectFile(up intake.Upload) (intake.Session, error) {
	if ws.isClosed() {
		return intake.Session{}, ErrClosed
	}
	return ws.intake.Select(up)
}

// RemoveFile clears the upload session
func (ws *Workspace) RemoveFile() (intake.Session, error) {
	if ws.isClosed() {
		return intake.Session{}, ErrClosed
	}
	s := ws.intake.Remove()
	ws.publish(EventUploadRemoved, s)
	return s, nil
}

// Session returns the current upload session
func (ws *Workspace) Session() intake.Session {
	return ws.intake.Snapshot()
}

// IntakeConfig returns the upload limits of the page
func (ws *Workspace) IntakeConfig() intake.Config {
	return ws.intake.Config()
}

// Form returns the fraud form of the page
func (ws *Workspace) Form() (*fraudform.Form, error) {
	if ws.form == nil {
		return nil, ErrNoForm
	}
	return ws.form, nil
}

// SubmitForm posts the fraud form. An invalid form is refused before any
// call is made.
func (ws *Workspace) SubmitForm(ctx context.Context) (analysis.Result, error) {
	if ws.isClosed() {
		return analysis.Result{}, ErrClosed
	}
	form, err := ws.Form()
	if err != nil {
		return analysis.Result{}, err
	}
	payload, err := form.Payload()
	if err != nil {
		return analysis.Result{}, &analysis.ValidationError{Field: "form", Reason: err.Error()}
	}
	ep, _ := analysis.LookupEndpoint(analysis.EndpointFraudForm)
	return ws.submitter.Submit(ctx, analysis.FormRequest{Endpoint: ep, Payload: payload})
}

// Submit sends an arbitrary request on behalf of the page
func (ws *Workspace) Submit(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	if ws.isClosed() {
		return analysis.Result{}, ErrClosed
	}
	return ws.submitter.Submit(ctx, req)
}

// Result returns the displayed analysis result
func (ws *Workspace) Result() (analysis.Result, bool) {
	return ws.submitter.Result()
}

// AwaitResult blocks until the displayed result has resolved
func (ws *Workspace) AwaitResult(ctx context.Context) (analysis.Result, error) {
	for {
		ws.mu.Lock()
		changed := ws.changed
		ws.mu.Unlock()

		if r, ok := ws.submitter.Result(); ok && r.Status != analysis.StatusPending {
			return r, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return analysis.Result{}, ctx.Err()
		}
	}
}

// View assembles the page state
func (ws *Workspace) View() View {
	v := View{
		ID:        ws.ID,
		Category:  ws.Category,
		CreatedAt: ws.CreatedAt,
		Session:   ws.intake.Snapshot(),
	}
	if info, ok := ws.Category.Info(); ok {
		v.Title = info.Title
	}
	if r, ok := ws.submitter.Result(); ok {
		v.Result = &r
		if summary, ok := Summarize(r); ok {
			v.Summary = &summary
		}
		v.Marks = Marks(r)
	}
	if ws.form != nil {
		st := ws.form.State()
		v.Form = &st
	}
	return v
}

// Close tears the page down. Calls in flight finish but their results are
// dropped.
func (ws *Workspace) Close() {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.closed = true
	ws.mu.Unlock()

	ws.submitter.Detach()
	ws.intake.Close()
	log.Debug().Str("workspace_id", ws.ID).Msg("Workspace closed")
}

// Wait blocks until every call started by the page has returned
func (ws *Workspace) Wait() {
	ws.submitter.Wait()
}

// Summarize renders a result. Pending results have nothing to show yet.
func Summarize(r analysis.Result) (render.Summary, bool) {
	switch r.Status {
	case analysis.StatusSucceeded:
		return render.Render(r.Shape, r.Payload), true
	case analysis.StatusFailed:
		return render.FailureSummary(r.ErrorDetail), true
	}
	return render.Summary{}, false
}

// Marks returns the time-indexed marks of a successful result
func Marks(r analysis.Result) []models.AnnotationMark {
	if r.Status != analysis.StatusSucceeded {
		return nil
	}
	return render.Marks(render.Normalize(r.Shape, r.Payload))
}

func (ws *Workspace) onAccepted(up intake.Upload) {
	ws.publish(EventUploadComplete, ws.intake.Snapshot())
	if ws.isClosed() {
		return
	}

	if ws.archiver != nil {
		ws.archiver.ArchiveUpload(ws.ID, up)
	}

	ep, ok := analysis.FileEndpoint(ws.Category, up.MIMEType)
	if !ok {
		log.Error().Err(ErrNoEndpoint).Str("workspace_id", ws.ID).Str("category", string(ws.Category)).Msg("Accepted upload not submitted")
		return
	}
	if _, err := ws.submitter.Submit(context.Background(), analysis.FileRequest{Endpoint: ep, Upload: up}); err != nil {
		log.Error().Err(err).Str("workspace_id", ws.ID).Msg("Failed to submit accepted upload")
	}
}

func (ws *Workspace) onResult(r analysis.Result) {
	ws.mu.Lock()
	close(ws.changed)
	ws.changed = make(chan struct{})
	ws.mu.Unlock()

	if r.Status == analysis.StatusPending {
		ws.publish(EventAnalysisPending, AnalysisEvent{Result: r})
		return
	}

	ev := AnalysisEvent{Result: r}
	if summary, ok := Summarize(r); ok {
		ev.Summary = &summary
	}
	ws.publish(EventAnalysisComplete, ev)

	if ws.archiver != nil {
		ws.archiver.ArchiveResult(ws.ID, r)
	}
}

func (ws *Workspace) publish(kind string, data any) {
	if ws.sink == nil {
		return
	}
	ws.sink(Event{Type: kind, WorkspaceID: ws.ID, Data: data})
}

func (ws *Workspace) isClosed() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.closed
}
