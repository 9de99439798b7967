package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/models"
	"github.com/example/trafficwatch/internal/storage"
)

// Task kinds queued by the archiver
const (
	KindArchiveUpload = "archive-upload"
	KindArchiveResult = "archive-result"
)

// Archiver copies accepted uploads and final results into the evidence
// store on the worker pool
type Archiver struct {
	pool  *WorkerPool
	store storage.Provider

	mu    sync.RWMutex
	files map[string][]models.EvidenceFile
}

// NewArchiver creates an archiver writing to store
func NewArchiver(pool *WorkerPool, store storage.Provider) *Archiver {
	return &Archiver{pool: pool, store: store, files: make(map[string][]models.EvidenceFile)}
}

// ArchiveUpload queues a copy of an accepted upload
func (a *Archiver) ArchiveUpload(workspaceID string, up intake.Upload) {
	key := storage.ObjectKey("uploads", workspaceID, up.Name)
	a.queue(KindArchiveUpload, workspaceID, func(ctx context.Context) error {
		rc, err := up.Open()
		if err != nil {
			return fmt.Errorf("failed to open upload: %w", err)
		}
		defer rc.Close()

		meta := storage.Metadata{
			ContentType: up.MIMEType,
			Attributes:  map[string]string{"workspace": workspaceID, "filename": up.Name},
		}
		id, err := a.store.Put(ctx, key, rc, int64(up.SizeBytes), meta)
		if err != nil {
			return err
		}
		a.record(models.EvidenceFile{
			ID:          key,
			WorkspaceID: workspaceID,
			Name:        up.Name,
			Size:        int64(up.SizeBytes),
			ContentType: up.MIMEType,
			UploadedAt:  time.Now(),
			StorageType: a.store.Type(),
			StorageID:   id,
		})
		return nil
	})
}

// ArchiveResult queues the JSON of a resolved result
func (a *Archiver) ArchiveResult(workspaceID string, r analysis.Result) {
	if r.Status == analysis.StatusPending {
		return
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("result_id", r.ID).Msg("Failed to encode result for archive")
		return
	}

	key := storage.ObjectKey("results", workspaceID, r.ID+".json")
	a.queue(KindArchiveResult, workspaceID, func(ctx context.Context) error {
		meta := storage.Metadata{
			ContentType: "application/json",
			Attributes:  map[string]string{"workspace": workspaceID, "endpoint": r.Endpoint, "status": string(r.Status)},
		}
		id, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), meta)
		if err != nil {
			return err
		}
		a.record(models.EvidenceFile{
			ID:          key,
			WorkspaceID: workspaceID,
			Name:        r.ID + ".json",
			Size:        int64(len(data)),
			ContentType: "application/json",
			UploadedAt:  time.Now(),
			StorageType: a.store.Type(),
			StorageID:   id,
			Metadata:    map[string]string{"endpoint": r.Endpoint, "status": string(r.Status)},
		})
		return nil
	})
}

// Files returns what has been archived for a workspace, oldest first
func (a *Archiver) Files(workspaceID string) []models.EvidenceFile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := append([]models.EvidenceFile(nil), a.files[workspaceID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out
}

func (a *Archiver) record(f models.EvidenceFile) {
	a.mu.Lock()
	a.files[f.WorkspaceID] = append(a.files[f.WorkspaceID], f)
	a.mu.Unlock()
}

func (a *Archiver) queue(kind, workspaceID string, run func(ctx context.Context) error) {
	task := NewTask(kind, run)
	if err := a.pool.Submit(task); err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("workspace_id", workspaceID).Msg("Archive task dropped")
	}
}
