package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/grounding"
	"github.com/akolanti/CivicRAG/internal/rag/retrieval"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

const reasonRetrievalUnavailable = "retrieval_unavailable"

func (s *service) authorizeQuery(p commonModels.Principal, req QueryRequest) error {
	if req.Query == "" || strings.TrimSpace(req.JurisdictionId) == "" {
		return fmt.Errorf("%w: query and jurisdictionId are required", ragErrors.ErrInvalidRequest)
	}
	if p.Role == "" {
		return ragErrors.ErrUnauthorized
	}
	if !p.CanQuery(req.JurisdictionId) {
		return ragErrors.ErrForbidden
	}
	return nil
}

func validateIngest(req IngestRequest) error {
	switch {
	case strings.TrimSpace(req.JurisdictionId) == "":
		return fmt.Errorf("%w: jurisdictionId is required", ragErrors.ErrInvalidRequest)
	case strings.TrimSpace(req.FileName) == "":
		return fmt.Errorf("%w: file name is required", ragErrors.ErrInvalidRequest)
	case len(req.Data) == 0:
		return fmt.Errorf("%w: file is empty", ragErrors.ErrInvalidRequest)
	case !supportedUpload(req.FileName):
		return fmt.Errorf("%w: unsupported file type %q", ragErrors.ErrInvalidRequest, req.FileName)
	}
	return nil
}

// unavailable keeps the query answering when a store is down: the caller gets the refusal, and
// only a spent deadline surfaces as an error.
func (s *service) unavailable(ctx context.Context, log *logger_i.Logger, q retrieval.PreparedQuery, cause error) (commonModels.Answer, string, error) {
	if err := ctx.Err(); err != nil {
		return commonModels.Answer{}, outcomeError, fmt.Errorf("query: %w", err)
	}
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		return commonModels.Answer{}, outcomeError, fmt.Errorf("query: %w", cause)
	}
	log.Error("retrieval failed, refusing", "error", cause)
	metrics.CaptureDegradation("retrieval")
	return s.deps.Grounding.NotFound(ctx, q, reasonRetrievalUnavailable), outcomeRefused, nil
}

// failUnread marks a job failed when its upload can no longer be read.
func (s *service) failUnread(ctx context.Context, job jobModel.IngestJob, cause error) (commonModels.Document, error) {
	doc, ok := s.deps.Documents.GetDocument(ctx, job.DocumentId)
	if !ok {
		return commonModels.Document{}, ragErrors.ErrDocumentNotFound
	}
	doc.Status = commonModels.DocumentFailed
	doc.Error = "upload unreadable: " + cause.Error()
	doc.UpdatedAt = time.Now().UTC()
	if err := s.deps.Documents.SaveDocument(context.WithoutCancel(ctx), doc); err != nil {
		s.logger.WithTrace(ctx).Error("failed to record ingestion failure", "documentId", doc.Id, "error", err)
	}
	metrics.CaptureIngestion(string(commonModels.DocumentFailed), 0, 0)
	return doc, fmt.Errorf("%w: %v", ragErrors.ErrExtractionFailed, cause)
}

func traceId(ctx context.Context) string {
	return logger_i.TraceId(ctx)
}

func toPassage(c retrieval.Candidate) Passage {
	return Passage{Citation: grounding.CitationOf(c), Text: c.Chunk.Text}
}
