// Package events defines the messages published to Kafka when a user's corpus changes.
package events

import (
	"context"
	"time"
)

const (
	TypeDocumentIngested = "document.ingested"
	TypeDocumentsCleared = "documents.cleared"
)

// DocumentEvent describes one change to a user's corpus.
type DocumentEvent struct {
	Type        string    `json:"type"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name,omitempty"`
	FileType    string    `json:"file_type,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	DocumentIDs []string  `json:"document_ids,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Ingested builds the event emitted after a file has been stored.
func Ingested(ownerID, fileName, fileType string, ids []string) DocumentEvent {
	return DocumentEvent{
		Type:        TypeDocumentIngested,
		OwnerID:     ownerID,
		FileName:    fileName,
		FileType:    fileType,
		ChunkCount:  len(ids),
		DocumentIDs: ids,
		OccurredAt:  time.Now().UTC(),
	}
}

// Cleared builds the event emitted after a user's corpus was emptied.
func Cleared(ownerID string) DocumentEvent {
	return DocumentEvent{
		Type:       TypeDocumentsCleared,
		OwnerID:    ownerID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, event DocumentEvent) error
}
