package jobModel

import (
	"context"
	"time"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
)

type JobStatus string
type InternalStatus string

const (
	JobStatusQueued   JobStatus = "QUEUED"
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusError    JobStatus = "Error"

	IngestInit       InternalStatus = "IngestInit"
	IngestExtract    InternalStatus = "Extract"
	IngestLanguage   InternalStatus = "Language"
	IngestChunk      InternalStatus = "Chunk"
	IngestEmbedding  InternalStatus = "EmbeddingAPI"
	IngestPersist    InternalStatus = "ChunkStore"
	IngestComplete   InternalStatus = "Complete"
	IngestErrorState InternalStatus = "Error"
)

// IngestJob is the unit of work handed to the worker pool for one uploaded file.
type IngestJob struct {
	Id             string    `json:"id"`
	TraceId        string    `json:"trace_id"`
	DocumentId     string    `json:"document_id"`
	JurisdictionId string    `json:"jurisdiction_id"`
	FileName       string    `json:"file_name"`
	SourceUri      string    `json:"source_uri"`
	SourceLanguage string    `json:"source_language,omitempty"`
	UploadedBy     string    `json:"uploaded_by,omitempty"`
	CreatedTime    time.Time `json:"created_time"`
}

// DocumentStore persists document records and their ingestion status.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentId string) (commonModels.Document, bool)
	SaveDocument(ctx context.Context, doc commonModels.Document) error
	DeleteDocument(ctx context.Context, documentId string) error
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]commonModels.Document, error)
}

// DocumentFilter narrows a listing, empty fields match everything.
type DocumentFilter struct {
	JurisdictionId string
	Status         commonModels.DocumentStatus
}

func (f DocumentFilter) Matches(doc commonModels.Document) bool {
	if f.JurisdictionId != "" && doc.JurisdictionId != f.JurisdictionId {
		return false
	}
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	return true
}

// FeedbackStore is append only, records have no update or delete path.
type FeedbackStore interface {
	AppendFeedback(ctx context.Context, record commonModels.FeedbackRecord) error
	ListFeedback(ctx context.Context) ([]commonModels.FeedbackRecord, error)
}
