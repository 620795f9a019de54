package database

import "time"

// Retry task states.
const (
	TaskPending = "pending"
	TaskRunning = "running"
)

// RetryTask is one queued re-run of the orchestrator for an asset.
type RetryTask struct {
	ID        string    `json:"id"`
	AssetID   int64     `json:"assetId"`
	Attempt   int       `json:"attempt"`
	DueAt     time.Time `json:"dueAt"`
	State     string    `json:"state"`
	LeasedAt  time.Time `json:"leasedAt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Document is a stored content body that references media by URL.
type Document struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updatedAt"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
}
