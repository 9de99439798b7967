// Package render turns loosely structured detector replies into typed
// reports and presentable summaries. A missing or malformed section never
// stops the others from rendering.
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Response layouts the detectors produce
const (
	ShapeAccident     = "accident"
	ShapeFraudVideo   = "fraud-video"
	ShapeFraudForm    = "fraud-form"
	ShapeLaneMarking  = "lane-marking"
	ShapeLaneChange   = "lane-change"
	ShapeUTurn        = "uturn"
	ShapeSpeed        = "speed"
	ShapeRoadSign     = "road-sign"
	ShapeTrafficLight = "traffic-light"

	ShapeFailure = "failure"
	ShapeUnknown = "unknown"
)

// Report is a normalised reply; the concrete type depends on the shape
type Report interface {
	Shape() string
}

// Failure replaces every other section when the reply carried a detail
type Failure struct {
	Detail string `json:"detail"`
}

// Shape implements Report
func (Failure) Shape() string { return ShapeFailure }

// Unknown holds a reply for which no renderer is registered
type Unknown struct {
	Fields map[string]any `json:"fields"`
}

// Shape implements Report
func (Unknown) Shape() string { return ShapeUnknown }

// List is a collection that may be absent from the reply altogether
type List[T any] struct {
	Present bool `json:"present"`
	Items   []T  `json:"items"`
}

// Section is one titled block of the summary
type Section struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
	Empty bool     `json:"empty,omitempty"`
}

// Summary is what a page displays for a result
type Summary struct {
	Shape    string    `json:"shape"`
	Title    string    `json:"title"`
	Failure  string    `json:"failure,omitempty"`
	MediaURL string    `json:"mediaUrl,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

// Renderer normalises and summarises one response shape
type Renderer interface {
	Title() string
	Normalize(payload map[string]any) Report
	Summarize(report Report) Summary
}

// Registry maintains renderers keyed by response shape
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]Renderer)}
}

// Register adds or replaces the renderer for a shape
func (r *Registry) Register(shape string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[shape] = renderer
}

// Get returns the renderer for a shape
func (r *Registry) Get(shape string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[shape]
	return renderer, ok
}

// Shapes lists the registered shapes
func (r *Registry) Shapes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.renderers))
	for shape := range r.renderers {
		out = append(out, shape)
	}
	sort.Strings(out)
	return out
}

// Normalize maps a reply onto a typed report. A detail field wins over
// everything else and nothing further is read from the payload.
func (r *Registry) Normalize(shape string, payload map[string]any) Report {
	if detail, ok := payload["detail"]; ok && detail != nil {
		return Failure{Detail: detailText(detail)}
	}

	renderer, ok := r.Get(shape)
	if !ok {
		fields := make(map[string]any, len(payload))
		for k, v := range payload {
			fields[k] = v
		}
		return Unknown{Fields: fields}
	}
	return renderer.Normalize(payload)
}

// Summarize produces the display form of a report
func (r *Registry) Summarize(report Report) Summary {
	switch rep := report.(type) {
	case Failure:
		return Summary{Shape: ShapeFailure, Title: "Analysis Failed", Failure: rep.Detail}
	case Unknown:
		return summarizeUnknown(rep)
	case nil:
		return Summary{Shape: ShapeUnknown, Title: "Analysis Results"}
	}

	renderer, ok := r.Get(report.Shape())
	if !ok {
		return Summary{Shape: report.Shape(), Title: "Analysis Results"}
	}
	return renderer.Summarize(report)
}

// Render normalises and summarises in one step
func (r *Registry) Render(shape string, payload map[string]any) Summary {
	return r.Summarize(r.Normalize(shape, payload))
}

// DefaultRegistry holds every built-in renderer
var DefaultRegistry = NewRegistry()

// Register adds a renderer to the default registry
func Register(shape string, renderer Renderer) {
	DefaultRegistry.Register(shape, renderer)
}

// Normalize uses the default registry
func Normalize(shape string, payload map[string]any) Report {
	return DefaultRegistry.Normalize(shape, payload)
}

// Summarize uses the default registry
func Summarize(report Report) Summary {
	return DefaultRegistry.Summarize(report)
}

// Render uses the default registry
func Render(shape string, payload map[string]any) Summary {
	return DefaultRegistry.Render(shape, payload)
}

// FailureSummary is the summary for a result that failed before any
// payload could be read
func FailureSummary(detail string) Summary {
	return Summary{Shape: ShapeFailure, Title: "Analysis Failed", Failure: detail}
}

// Percent formats a 0..1 score as a percentage with one decimal
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// listSection renders a collection with the present/empty/absent rule.
// Absent collections produce no section.
func listSection[T any](title string, l List[T], none string, line func(T) []string) (Section, bool) {
	if !l.Present {
		return Section{}, false
	}
	s := Section{Title: title}
	if len(l.Items) == 0 {
		s.Lines = []string{none}
		s.Empty = true
		return s, true
	}
	for _, item := range l.Items {
		s.Lines = append(s.Lines, line(item)...)
	}
	return s, true
}

func summarizeUnknown(rep Unknown) Summary {
	keys := make([]string, 0, len(rep.Fields))
	for k := range rep.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := Section{Title: "Raw Result"}
	for _, k := range keys {
		s.Lines = append(s.Lines, fmt.Sprintf("%s: %s", k, text(rep.Fields[k])))
	}
	if len(s.Lines) == 0 {
		s.Lines = []string{"No data returned."}
		s.Empty = true
	}
	return Summary{Shape: ShapeUnknown, Title: "Analysis Results", Sections: []Section{s}}
}

func detailText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
