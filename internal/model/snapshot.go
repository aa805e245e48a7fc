package model

import "time"

type SnapshotStatus string

const (
	SnapshotPending   SnapshotStatus = "pending"
	SnapshotUploading SnapshotStatus = "uploading"
	SnapshotCompleted SnapshotStatus = "completed"
	SnapshotFailed    SnapshotStatus = "failed"
)

type Snapshot struct {
	ID          int64          `json:"id"`
	ObjectKey   string         `json:"object_key"`
	Status      SnapshotStatus `json:"status"`
	SizeBytes   int64          `json:"size_bytes"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
