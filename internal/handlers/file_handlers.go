package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/models"
	"github.com/example/trafficwatch/internal/workspace"
)

// signedURLExpiry is how long evidence download links stay valid
const signedURLExpiry = 15 * time.Minute

// spool keeps uploaded bytes on disk for as long as their workspace lives
type spool struct {
	dir string
}

func (s *spool) root() string {
	if s.dir == "" {
		return filepath.Join(os.TempDir(), "trafficwatch-spool")
	}
	return s.dir
}

// save copies at most limit bytes of r into the workspace's spool directory
func (s *spool) save(workspaceID, name string, r io.Reader, limit int64) (string, int64, error) {
	dir := filepath.Join(s.root(), workspaceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create spool directory: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(name))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, limit))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to spool upload: %w", err)
	}
	return path, n, nil
}

func (s *spool) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove spooled file")
	}
}

func (s *spool) clear(workspaceID string) {
	if err := os.RemoveAll(filepath.Join(s.root(), workspaceID)); err != nil {
		log.Warn().Err(err).Str("workspace_id", workspaceID).Msg("Failed to clear spool")
	}
}

type createWorkspaceRequest struct {
	Category string `json:"category"`
}

// CreateWorkspace opens a category page
func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ws, err := h.manager.Create(req.Category)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: ws.View()}, http.StatusCreated)
}

// ListWorkspaces returns every open page, oldest first
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list := h.manager.List()
	views := make([]workspace.View, 0, len(list))
	for _, ws := range list {
		views = append(views, ws.View())
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: views}, http.StatusOK)
}

// GetWorkspace returns the session, result and summary of a page
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: ws.View()}, http.StatusOK)
}

// DeleteWorkspace tears a page down
func (h *Handler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Close(id); err != nil {
		h.sendError(w, r, err)
		return
	}
	h.spool.clear(id)
	sendJSONResponse(w, models.APIResponse{Success: true, Message: "Workspace closed"}, http.StatusOK)
}

// SelectFile streams the multipart "file" field into the spool and hands it
// to the page's intake. A rejected file answers 422 with the session.
func (h *Handler) SelectFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		sendJSONError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	var part io.ReadCloser
	var name, mimeType string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			sendJSONError(w, "No file provided", http.StatusBadRequest)
			return
		}
		if err != nil {
			sendJSONError(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		if p.FormName() == "file" && p.FileName() != "" {
			part = p
			name = filepath.Base(p.FileName())
			mimeType = partType(p.Header.Get("Content-Type"), name)
			break
		}
		p.Close()
	}
	defer part.Close()

	// One byte past the limit is enough for intake to reject it
	limit := int64(ws.IntakeConfig().MaxSizeMB)<<20 + 1
	path, size, err := h.spool.save(ws.ID, name, part, limit)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	up := intake.Upload{
		Candidate: intake.Candidate{Name: name, SizeBytes: uint64(size), MIMEType: mimeType},
		Open:      func() (io.ReadCloser, error) { return os.Open(path) },
	}
	session, err := ws.SelectFile(up)
	var rej *intake.RejectionError
	switch {
	case errors.As(err, &rej):
		h.spool.discard(path)
		h.metrics.RecordRejection(rej.Kind)
		sendJSONResponse(w, models.APIResponse{Success: false, Error: rej.Reason, Data: session}, http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.spool.discard(path)
		h.sendError(w, r, err)
		return
	}

	log.Info().Str("workspace_id", ws.ID).Str("file", name).Int64("size", size).Msg("Upload spooled")
	sendJSONResponse(w, models.APIResponse{Success: true, Message: "Upload started", Data: session}, http.StatusAccepted)
}

// partType falls back to the file extension when the browser sent no
// specific type
func partType(header, name string) string {
	if header != "" && header != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return mt
		}
		return header
	}
	return intake.TypeByName(name)
}

// RemoveFile clears the page's upload session
func (h *Handler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	session, err := ws.RemoveFile()
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: session}, http.StatusOK)
}

type evidenceEntry struct {
	models.EvidenceFile
	URL string `json:"url,omitempty"`
}

// ListEvidence returns what the archive holds for a page
func (h *Handler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		sendJSONError(w, "Evidence archive is disabled", http.StatusNotFound)
		return
	}
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	files := h.archiver.Files(ws.ID)
	out := make([]evidenceEntry, 0, len(files))
	for _, f := range files {
		entry := evidenceEntry{EvidenceFile: f}
		if h.evidence != nil {
			url, err := h.evidence.SignedURL(r.Context(), f.ID, signedURLExpiry)
			if err != nil {
				log.Warn().Err(err).Str("key", f.ID).Msg("Failed to sign evidence URL")
			} else {
				entry.URL = url
			}
		}
		out = append(out, entry)
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Data: out}, http.StatusOK)
}
