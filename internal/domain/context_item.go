package domain

import (
	"fmt"
	"time"
)

// SourceType identifies where a piece of context came from.
type SourceType string

const (
	SourceTypeChat       SourceType = "chat"
	SourceTypeTranscript SourceType = "transcript"
	SourceTypeManual     SourceType = "manual"
	SourceTypeDocument   SourceType = "document"
)

// ContextItem is one ingested unit of unstructured text. Immutable once created.
type ContextItem struct {
	ID         string
	UserID     string
	SourceType SourceType
	SourceID   string
	RawText    string
	Complexity float64
	CreatedAt  time.Time
}

// NewContextItem creates a new ContextItem instance.
func NewContextItem(id, userID string, sourceType SourceType, sourceID, rawText string, createdAt time.Time) *ContextItem {
	return &ContextItem{
		ID:         id,
		UserID:     userID,
		SourceType: sourceType,
		SourceID:   sourceID,
		RawText:    rawText,
		CreatedAt:  createdAt,
	}
}

// ValidateContextItem validates a ContextItem instance.
func ValidateContextItem(c *ContextItem) error {
	if c == nil {
		return fmt.Errorf("context item cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("context item ID is required")
	}

	if c.RawText == "" {
		return fmt.Errorf("context item RawText is required")
	}

	if !IsValidSourceType(c.SourceType) {
		return fmt.Errorf("context item SourceType is invalid: %s", c.SourceType)
	}

	return nil
}

// IsValidSourceType checks if a SourceType is valid.
func IsValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypeChat, SourceTypeTranscript, SourceTypeManual, SourceTypeDocument:
		return true
	}
	return false
}
