// Package models provides data structures shared across the dashboard service
package models

import (
	"time"
)

// EvidenceFile describes an accepted upload kept in the evidence archive
type EvidenceFile struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspaceId"`
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	ContentType string            `json:"contentType"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	StorageType string            `json:"storageType"` // "local", "s3", "gcs"
	StorageID   string            `json:"storageId"`   // ID in the storage system
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// APIResponse is a generic API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
