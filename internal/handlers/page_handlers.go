package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/fraudform"
	"github.com/example/trafficwatch/internal/models"
	"github.com/example/trafficwatch/internal/playback"
	"github.com/example/trafficwatch/internal/report"
	"github.com/example/trafficwatch/internal/theme"
)

// Overlay sizes when the page does not say
const (
	defaultOverlayWidth  = 640
	defaultOverlayHeight = 360
	maxOverlaySide       = 4096
)

func (h *Handler) form(w http.ResponseWriter, r *http.Request) (*fraudform.Form, bool) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return nil, false
	}
	form, err := ws.Form()
	if err != nil {
		h.sendError(w, r, err)
		return nil, false
	}
	return form, true
}

// GetForm returns the fraud form with its outstanding errors
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	form, ok := h.form(w, r)
	if !ok {
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: form.State()}, http.StatusOK)
}

type formRequest struct {
	Vehicles   []fraudform.VehicleInput `json:"vehicles"`
	AreaType   string                   `json:"area_type"`
	SpeedLimit float64                  `json:"speed_limit"`
}

// ReplaceForm overwrites every field of the fraud form. The response
// carries the validation errors; an invalid form is not a failed request.
func (h *Handler) ReplaceForm(w http.ResponseWriter, r *http.Request) {
	form, ok := h.form(w, r)
	if !ok {
		return
	}
	var req formRequest
	if err := decodeJSON(r, &req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	form.Replace(req.Vehicles, req.AreaType, req.SpeedLimit)
	sendJSONResponse(w, models.APIResponse{Success: true, Data: form.State()}, http.StatusOK)
}

// LoadScenario fills the fraud form with a sample scenario
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	form, ok := h.form(w, r)
	if !ok {
		return
	}
	if err := form.LoadScenario(mux.Vars(r)["name"]); err != nil {
		h.sendError(w, r, err)
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: form.State()}, http.StatusOK)
}

// SubmitForm posts a valid fraud form. An invalid one answers 422 with the
// form state and no backend call is made.
func (h *Handler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	result, err := ws.SubmitForm(r.Context())
	var validation *analysis.ValidationError
	if errors.As(err, &validation) {
		resp := models.APIResponse{Success: false, Error: err.Error()}
		if form, ferr := ws.Form(); ferr == nil {
			resp.Data = form.State()
		}
		sendJSONResponse(w, resp, http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Message: "Analysis started", Data: result}, http.StatusAccepted)
}

// ExportReport downloads the displayed analysis as text or DOCX
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	contentType, err := report.ContentType(format)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	view := ws.View()
	var buf bytes.Buffer
	if err := report.Write(&buf, view, format, h.now()); err != nil {
		h.sendError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(view, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

// GetOverlay renders the marks active at t as a transparent PNG. With
// ?sample= the demo marks of that clip are drawn instead of the result's.
func (h *Handler) GetOverlay(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	t, err := floatParam(q.Get("t"), 0)
	if err != nil || t < 0 {
		sendJSONError(w, "Invalid time", http.StatusBadRequest)
		return
	}
	width, werr := floatParam(q.Get("w"), defaultOverlayWidth)
	height, herr := floatParam(q.Get("h"), defaultOverlayHeight)
	if werr != nil || herr != nil || width < 1 || height < 1 || width > maxOverlaySide || height > maxOverlaySide {
		sendJSONError(w, "Invalid overlay size", http.StatusBadRequest)
		return
	}

	marks := ws.View().Marks
	if name := q.Get("sample"); name != "" {
		sample, ok := playback.SampleFor(name)
		if !ok {
			sendJSONError(w, fmt.Sprintf("Unknown sample %q", name), http.StatusNotFound)
			return
		}
		marks = sample.Marks
	}

	size := playback.Size{Width: width, Height: height}
	boxes := playback.Layout(playback.ActiveMarks(marks, t), size)

	var buf bytes.Buffer
	if err := playback.RenderPNG(&buf, boxes, size); err != nil {
		h.sendError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Overlay-Boxes", strconv.Itoa(len(boxes)))
	buf.WriteTo(w)
}

// GetSample returns a demo clip and its marks
func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sample, ok := playback.SampleFor(name)
	if !ok {
		sendJSONError(w, fmt.Sprintf("Unknown sample %q", name), http.StatusNotFound)
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: sample}, http.StatusOK)
}

type themeState struct {
	Mode string `json:"mode"`
	Dark bool   `json:"dark"`
}

func stateOf(mode theme.Mode) themeState {
	return themeState{Mode: string(mode), Dark: mode == theme.Dark}
}

// GetTheme returns the light/dark flag
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, models.APIResponse{Success: true, Data: stateOf(h.theme.Mode())}, http.StatusOK)
}

// ToggleTheme flips the flag. A preference that could not be saved is
// reported but the flag still flips.
func (h *Handler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	mode, err := h.theme.Toggle()
	resp := models.APIResponse{Success: true, Data: stateOf(mode)}
	if err != nil {
		resp.Message = "Theme changed but the preference could not be saved"
	}
	sendJSONResponse(w, resp, http.StatusOK)
}

func floatParam(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", raw)
	}
	return v, nil
}
