package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/adapter/utils"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/data/blobStore"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/extract"
	"github.com/akolanti/CivicRAG/internal/rag/grounding"
	"github.com/akolanti/CivicRAG/internal/rag/ingest"
	"github.com/akolanti/CivicRAG/internal/rag/rerank"
	"github.com/akolanti/CivicRAG/internal/rag/retrieval"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

/*
Service is the only thing the transports (http handlers, mcp tools, the worker pool) talk to.
The private struct holds the stores and providers, so handlers never reach the chunk store or
a model directly and tests swap any of them through Dependencies.

Every method checks the Principal before doing any work.
*/
type Service interface {
	Query(ctx context.Context, p commonModels.Principal, req QueryRequest) (commonModels.Answer, error)
	// Search is retrieval without generation.
	Search(ctx context.Context, p commonModels.Principal, req QueryRequest) (SearchResult, error)

	// AcceptDocument stores the upload and writes its processing record. The returned job is run
	// by IngestDocument, inline or on the worker pool.
	AcceptDocument(ctx context.Context, p commonModels.Principal, req IngestRequest) (jobModel.IngestJob, commonModels.Document, error)
	IngestDocument(ctx context.Context, job jobModel.IngestJob) (commonModels.Document, error)
	GetDocument(ctx context.Context, p commonModels.Principal, documentId string) (commonModels.Document, error)
	ListDocuments(ctx context.Context, p commonModels.Principal, filter jobModel.DocumentFilter) ([]commonModels.Document, error)
	// DeleteDocument removes the chunks, the blob and the record, and returns the chunk count removed.
	DeleteDocument(ctx context.Context, p commonModels.Principal, documentId string) (int, error)

	SubmitFeedback(ctx context.Context, p commonModels.Principal, record commonModels.FeedbackRecord) error
	ListFeedback(ctx context.Context, p commonModels.Principal) ([]commonModels.FeedbackRecord, error)
}

type QueryRequest struct {
	Query          string
	JurisdictionId string
}

type IngestRequest struct {
	JurisdictionId string
	FileName       string
	SourceLanguage string
	// DocumentId re-ingests an existing document when set.
	DocumentId string
	Data       []byte
}

type Passage struct {
	commonModels.Citation
	Text string `json:"text"`
}

type SearchResult struct {
	DetectedLanguage string    `json:"detectedLanguage"`
	TranslatedQuery  string    `json:"translatedQuery"`
	RetrievalTier    string    `json:"retrievalTier"`
	Passages         []Passage `json:"passages"`
}

type Dependencies struct {
	Engine    retrieval.Engine
	Reranker  rerank.Reranker
	Grounding grounding.Controller
	Pipeline  ingest.Pipeline
	Chunks    vectorDB.ChunkStore
	Documents jobModel.DocumentStore
	Feedback  jobModel.FeedbackStore
	Blobs     blobStore.BlobStore
	Cache     vectorDB.AnswerCache
}

type service struct {
	deps   Dependencies
	logger *logger_i.Logger
}

func NewService(deps Dependencies) Service {
	if deps.Cache == nil {
		deps.Cache = vectorDB.NoopCache{}
	}
	return &service{
		deps:   deps,
		logger: logger_i.NewLogger("RAG Service"),
	}
}

const (
	outcomeGreeting = "greeting"
	outcomeCache    = "cache"
	outcomeGrounded = "grounded"
	outcomeRefused  = "refused"
	outcomeError    = "error"
)

func (s *service) Query(ctx context.Context, p commonModels.Principal, req QueryRequest) (commonModels.Answer, error) {
	start := time.Now()
	req.Query = strings.TrimSpace(req.Query)
	if err := s.authorizeQuery(p, req); err != nil {
		return commonModels.Answer{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
	defer cancel()

	answer, outcome, err := s.answer(queryCtx, req)
	if err != nil {
		outcome = outcomeError
	}
	metrics.CaptureAnswer(outcome, time.Since(start))
	return answer, err
}

func (s *service) answer(ctx context.Context, req QueryRequest) (commonModels.Answer, string, error) {
	log := s.logger.WithTrace(ctx).With("jurisdictionId", req.JurisdictionId)

	if answer, ok := s.deps.Grounding.Greeting(req.Query); ok {
		return answer, outcomeGreeting, nil
	}

	n, err := s.deps.Engine.Count(ctx, req.JurisdictionId)
	if err != nil {
		return s.unavailable(ctx, log, retrieval.PreparedQuery{Original: req.Query, Translated: req.Query}, err)
	}
	if n == 0 {
		log.Info("jurisdiction has no documents")
		metrics.CaptureRetrievalTier(retrieval.TierNone)
		q := retrieval.PreparedQuery{Original: req.Query, Translated: req.Query}
		return s.deps.Grounding.NotFound(ctx, q, grounding.ReasonNoEvidence), outcomeRefused, nil
	}

	q := s.deps.Engine.Prepare(ctx, req.Query)
	vector := q.PrimaryVector()
	if vector != nil {
		if cached, ok := s.deps.Cache.Lookup(ctx, req.JurisdictionId, q.Language, vector); ok {
			log.Debug("answer cache hit")
			cached.AnswerId = utils.GetNewUUID()
			return cached, outcomeCache, nil
		}
	}

	res, err := s.deps.Engine.Retrieve(ctx, req.JurisdictionId, q)
	if errors.Is(err, ragErrors.ErrNoEvidence) {
		return s.deps.Grounding.NotFound(ctx, q, grounding.ReasonNoEvidence), outcomeRefused, nil
	}
	if err != nil {
		return s.unavailable(ctx, log, q, err)
	}

	evidence := s.deps.Reranker.Rerank(ctx, q.Translated, res.Candidates)
	answer := s.deps.Grounding.Answer(ctx, q, evidence, res.Tier)
	if !answer.Grounded {
		if err := ctx.Err(); err != nil {
			return commonModels.Answer{}, outcomeError, fmt.Errorf("query: %w", err)
		}
		return answer, outcomeRefused, nil
	}

	if vector != nil {
		go func(ctx context.Context) {
			if err := s.deps.Cache.Store(ctx, req.JurisdictionId, q.Language, vector, answer); err != nil {
				s.logger.WithTrace(ctx).Warn("failed to cache answer", "error", err)
			}
		}(context.WithoutCancel(ctx))
	}
	return answer, outcomeGrounded, nil
}

func (s *service) Search(ctx context.Context, p commonModels.Principal, req QueryRequest) (SearchResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if err := s.authorizeQuery(p, req); err != nil {
		return SearchResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
	defer cancel()

	res, q, err := s.deps.Engine.Search(ctx, req.JurisdictionId, req.Query)
	out := SearchResult{
		DetectedLanguage: q.Language,
		TranslatedQuery:  q.Translated,
		RetrievalTier:    res.Tier,
		Passages:         []Passage{},
	}
	if errors.Is(err, ragErrors.ErrNoEvidence) {
		return out, nil
	}
	if err != nil {
		return SearchResult{}, err
	}
	for _, c := range res.Candidates {
		out.Passages = append(out.Passages, toPassage(c))
	}
	return out, nil
}

func (s *service) AcceptDocument(ctx context.Context, p commonModels.Principal, req IngestRequest) (jobModel.IngestJob, commonModels.Document, error) {
	if err := validateIngest(req); err != nil {
		return jobModel.IngestJob{}, commonModels.Document{}, err
	}
	if !p.CanManage(req.JurisdictionId) {
		return jobModel.IngestJob{}, commonModels.Document{}, ragErrors.ErrForbidden
	}

	documentId := req.DocumentId
	var previous commonModels.Document
	if documentId != "" {
		existing, ok := s.deps.Documents.GetDocument(ctx, documentId)
		if !ok {
			return jobModel.IngestJob{}, commonModels.Document{}, ragErrors.ErrDocumentNotFound
		}
		if existing.JurisdictionId != req.JurisdictionId {
			return jobModel.IngestJob{}, commonModels.Document{}, fmt.Errorf("%w: document belongs to another jurisdiction", ragErrors.ErrInvalidRequest)
		}
		previous = existing
	} else {
		documentId = utils.GetNewUUID()
	}

	uri, err := s.deps.Blobs.Put(ctx, req.Data, blobStore.PathHint(req.JurisdictionId, documentId, req.FileName))
	if err != nil {
		return jobModel.IngestJob{}, commonModels.Document{}, fmt.Errorf("store upload: %w", err)
	}

	job := jobModel.IngestJob{
		Id:             utils.GetNewUUID(),
		TraceId:        traceId(ctx),
		DocumentId:     documentId,
		JurisdictionId: req.JurisdictionId,
		FileName:       req.FileName,
		SourceUri:      uri,
		SourceLanguage: req.SourceLanguage,
		UploadedBy:     p.UserId,
		CreatedTime:    time.Now().UTC(),
	}
	doc := ingest.NewDocument(job)
	doc.SizeBytes = int64(len(req.Data))
	if previous.Id != "" {
		doc.CreatedAt = previous.CreatedAt
	}
	if err := s.deps.Documents.SaveDocument(ctx, doc); err != nil {
		_ = s.deps.Blobs.Delete(ctx, uri)
		return jobModel.IngestJob{}, commonModels.Document{}, fmt.Errorf("save document record: %w", err)
	}
	if previous.SourceUri != "" && previous.SourceUri != uri {
		if err := s.deps.Blobs.Delete(ctx, previous.SourceUri); err != nil {
			s.logger.WithTrace(ctx).Warn("failed to remove replaced upload", "uri", previous.SourceUri, "error", err)
		}
	}

	s.logger.WithTrace(ctx).Info("document accepted", "documentId", documentId, "jurisdictionId", req.JurisdictionId, "file", req.FileName)
	return job, doc, nil
}

func (s *service) IngestDocument(ctx context.Context, job jobModel.IngestJob) (commonModels.Document, error) {
	data, err := s.deps.Blobs.Get(ctx, job.SourceUri)
	if err != nil {
		return s.failUnread(ctx, job, err)
	}
	return s.deps.Pipeline.Run(ctx, job, data)
}

func (s *service) GetDocument(ctx context.Context, p commonModels.Principal, documentId string) (commonModels.Document, error) {
	doc, ok := s.deps.Documents.GetDocument(ctx, documentId)
	if !ok {
		return commonModels.Document{}, ragErrors.ErrDocumentNotFound
	}
	if !p.CanManage(doc.JurisdictionId) {
		return commonModels.Document{}, ragErrors.ErrForbidden
	}
	return doc, nil
}

func (s *service) ListDocuments(ctx context.Context, p commonModels.Principal, filter jobModel.DocumentFilter) ([]commonModels.Document, error) {
	if filter.JurisdictionId != "" && !p.CanManage(filter.JurisdictionId) {
		return nil, ragErrors.ErrForbidden
	}
	if p.Role != commonModels.RoleAdmin && p.Role != commonModels.RoleSubAdmin {
		return nil, ragErrors.ErrForbidden
	}

	docs, err := s.deps.Documents.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]commonModels.Document, 0, len(docs))
	for _, d := range docs {
		if p.CanManage(d.JurisdictionId) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *service) DeleteDocument(ctx context.Context, p commonModels.Principal, documentId string) (int, error) {
	doc, ok := s.deps.Documents.GetDocument(ctx, documentId)
	if !ok {
		return 0, ragErrors.ErrDocumentNotFound
	}
	if !p.CanManage(doc.JurisdictionId) {
		return 0, ragErrors.ErrForbidden
	}
	log := s.logger.WithTrace(ctx).With("documentId", documentId, "jurisdictionId", doc.JurisdictionId)

	removed, err := s.deps.Chunks.DeleteByDocument(ctx, documentId)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	remaining, err := s.deps.Chunks.FindByDocument(ctx, documentId)
	if err != nil {
		return removed, fmt.Errorf("verify chunk delete: %w", err)
	}
	if len(remaining) > 0 {
		return removed, fmt.Errorf("delete document %s: %d chunks remain", documentId, len(remaining))
	}

	if doc.SourceUri != "" {
		if err := s.deps.Blobs.Delete(ctx, doc.SourceUri); err != nil {
			log.Warn("failed to remove upload", "uri", doc.SourceUri, "error", err)
		}
	}
	if err := s.deps.Documents.DeleteDocument(ctx, documentId); err != nil {
		return removed, fmt.Errorf("delete document record: %w", err)
	}
	if err := s.deps.Cache.Invalidate(ctx, doc.JurisdictionId); err != nil {
		log.Warn("answer cache invalidation failed", "error", err)
	}

	log.Info("document deleted", "chunks", removed)
	return removed, nil
}

func (s *service) SubmitFeedback(ctx context.Context, p commonModels.Principal, record commonModels.FeedbackRecord) error {
	if p.Role == "" {
		return ragErrors.ErrUnauthorized
	}
	if strings.TrimSpace(record.AnswerId) == "" {
		return fmt.Errorf("%w: answerId is required", ragErrors.ErrInvalidRequest)
	}
	if !record.Verdict.Valid() {
		return fmt.Errorf("%w: verdict must be %q or %q", ragErrors.ErrInvalidRequest, commonModels.VerdictHelpful, commonModels.VerdictNotHelpful)
	}
	record.CreatedAt = time.Now().UTC()
	return s.deps.Feedback.AppendFeedback(ctx, record)
}

func (s *service) ListFeedback(ctx context.Context, p commonModels.Principal) ([]commonModels.FeedbackRecord, error) {
	if !p.IsAdmin() {
		return nil, ragErrors.ErrForbidden
	}
	return s.deps.Feedback.ListFeedback(ctx)
}

// supportedUpload rejects types no extractor handles before anything is stored.
func supportedUpload(fileName string) bool {
	return extract.DocTypeOf(fileName) != commonModels.ERR
}
