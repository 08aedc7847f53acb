package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/contextiq/contextiq/internal/domain"
)

// ContextArchiver writes each ingested context item to object storage as
// JSON. The database row keeps the raw text too; the archive is the
// durable copy that survives retention policies on the hot store.
type ContextArchiver struct {
	client *S3Client
}

// NewContextArchiver creates a new ContextArchiver instance
func NewContextArchiver(client *S3Client) *ContextArchiver {
	return &ContextArchiver{client: client}
}

type archiveRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id,omitempty"`
	RawText    string    `json:"raw_text"`
	Complexity float64   `json:"complexity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Archive stores the item under context/<user>/<year>/<month>/<id>.json.
func (a *ContextArchiver) Archive(ctx context.Context, item *domain.ContextItem) error {
	payload, err := json.Marshal(archiveRecord{
		ID:         item.ID,
		UserID:     item.UserID,
		SourceType: string(item.SourceType),
		SourceID:   item.SourceID,
		RawText:    item.RawText,
		Complexity: item.Complexity,
		CreatedAt:  item.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode context item: %w", err)
	}
	return a.client.PutObject(ctx, ArchiveKey(item), "application/json", payload)
}

// ArchiveKey returns the object key for a context item.
func ArchiveKey(item *domain.ContextItem) string {
	return fmt.Sprintf("context/%s/%s/%s.json",
		item.UserID, item.CreatedAt.UTC().Format("2006/01"), item.ID)
}
