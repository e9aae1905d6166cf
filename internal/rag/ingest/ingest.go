package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/akolanti/CivicRAG/internal/adapter/utils"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/internal/rag/chunker"
	"github.com/akolanti/CivicRAG/internal/rag/embedding"
	"github.com/akolanti/CivicRAG/internal/rag/extract"
	"github.com/akolanti/CivicRAG/internal/rag/language"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

// Pipeline turns one uploaded file into persisted chunks and drives the document record from
// processing to ready or failed.
type Pipeline interface {
	Run(ctx context.Context, job jobModel.IngestJob, data []byte) (commonModels.Document, error)
}

type Dependencies struct {
	Extractor extract.Extractor
	Language  language.Service
	Embedder  embedding.Embedder
	Chunks    vectorDB.ChunkStore
	Documents jobModel.DocumentStore
	Cache     vectorDB.AnswerCache
	Tuning    config.TuningSource
}

type pipeline struct {
	deps   Dependencies
	logger *logger_i.Logger
}

func NewPipeline(deps Dependencies) Pipeline {
	if deps.Cache == nil {
		deps.Cache = vectorDB.NoopCache{}
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewExtractor()
	}
	return &pipeline{deps: deps, logger: logger_i.NewLogger("Document Ingestion")}
}

// NewDocument is the processing record written when an upload is accepted.
func NewDocument(job jobModel.IngestJob) commonModels.Document {
	now := time.Now().UTC()
	return commonModels.Document{
		Id:             job.DocumentId,
		JurisdictionId: job.JurisdictionId,
		FileName:       job.FileName,
		FileType:       extract.DocTypeOf(job.FileName),
		SourceUri:      job.SourceUri,
		SourceLanguage: job.SourceLanguage,
		Status:         commonModels.DocumentProcessing,
		UploadedBy:     job.UploadedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (p *pipeline) Run(ctx context.Context, job jobModel.IngestJob, data []byte) (commonModels.Document, error) {
	start := time.Now()
	log := p.logger.WithTrace(ctx).With("documentId", job.DocumentId, "jurisdictionId", job.JurisdictionId)

	// the record is written on accept, a miss means the document was deleted before this run
	doc, ok := p.deps.Documents.GetDocument(ctx, job.DocumentId)
	if !ok {
		log.Warn("document deleted before ingestion started")
		return commonModels.Document{}, fmt.Errorf("%w: deleted before ingestion", ragErrors.ErrDocumentNotFound)
	}
	doc.Status = commonModels.DocumentProcessing
	doc.Error = ""
	doc.SizeBytes = int64(len(data))
	if err := p.deps.Documents.SaveDocument(ctx, doc); err != nil {
		log.Error("could not record processing status", "error", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, config.IngestionTimeout)
	defer cancel()

	chunks, sourceLanguage, pageCount, err := p.build(runCtx, log, job, data)
	if err == nil {
		log.Debug("ingest step", "step", jobModel.IngestPersist, "chunks", len(chunks))
		err = p.persist(runCtx, log, job.DocumentId, chunks)
	}
	if sourceLanguage != "" {
		doc.SourceLanguage = sourceLanguage
	}
	doc.PageCount = pageCount
	if err != nil {
		return p.fail(ctx, log, doc, err, start)
	}

	// a delete that landed mid-run already removed the record, do not resurrect it
	if _, ok := p.deps.Documents.GetDocument(ctx, job.DocumentId); !ok {
		if _, err := p.deps.Chunks.DeleteByDocument(context.WithoutCancel(ctx), job.DocumentId); err != nil {
			log.Error("could not drop chunks of deleted document", "error", err)
		}
		log.Warn("document deleted during ingestion, chunks dropped")
		return doc, fmt.Errorf("%w: deleted during ingestion", ragErrors.ErrDocumentNotFound)
	}

	doc.Status = commonModels.DocumentReady
	doc.ChunkCount = len(chunks)
	doc.UpdatedAt = time.Now().UTC()
	if err := p.deps.Documents.SaveDocument(context.WithoutCancel(ctx), doc); err != nil {
		log.Error("could not record ready status", "error", err)
	}
	if err := p.deps.Cache.Invalidate(context.WithoutCancel(ctx), job.JurisdictionId); err != nil {
		log.Warn("answer cache invalidation failed", "error", err)
	}

	metrics.CaptureIngestion(string(commonModels.DocumentReady), len(chunks), time.Since(start))
	log.Info("document ready", "step", jobModel.IngestComplete, "chunks", len(chunks), "language", sourceLanguage)
	return doc, nil
}

// fail records the terminal status with a context that outlives the request, so a timed out
// ingestion still shows up as failed.
func (p *pipeline) fail(ctx context.Context, log *logger_i.Logger, doc commonModels.Document, cause error, start time.Time) (commonModels.Document, error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("ingestion timed out: %w", cause)
	}
	if _, ok := p.deps.Documents.GetDocument(ctx, doc.Id); !ok {
		log.Warn("document deleted during ingestion, not recording failure", "error", cause)
		return doc, cause
	}
	doc.Status = commonModels.DocumentFailed
	doc.Error = cause.Error()
	doc.ChunkCount = 0
	doc.UpdatedAt = time.Now().UTC()
	if err := p.deps.Documents.SaveDocument(context.WithoutCancel(ctx), doc); err != nil {
		log.Error("could not record failed status", "error", err)
	}

	metrics.CaptureIngestion(string(commonModels.DocumentFailed), 0, time.Since(start))
	log.Error("document failed", "step", jobModel.IngestErrorState, "error", cause, "terminal", ragErrors.IsTerminalIngestion(cause))
	return doc, cause
}

func (p *pipeline) build(ctx context.Context, log *logger_i.Logger, job jobModel.IngestJob, data []byte) ([]commonModels.Chunk, string, int, error) {
	tuning := p.deps.Tuning.Current()

	log.Debug("ingest step", "step", jobModel.IngestExtract, "file", job.FileName)
	result, err := p.deps.Extractor.Extract(ctx, data, job.FileName)
	if err != nil {
		return nil, "", 0, err
	}

	log.Debug("ingest step", "step", jobModel.IngestLanguage)
	sourceLanguage := p.sourceLanguage(ctx, job.SourceLanguage, result.FullText, tuning.Language)
	pages, approximate := result.PageView()
	pageCount := 0
	if !approximate {
		pageCount = len(pages)
	}
	if approximate {
		log.Warn("page numbers approximated from blank line runs", "pages", len(pages))
	}
	paras := p.paragraphs(ctx, pages, sourceLanguage)
	if len(paras) == 0 {
		return nil, sourceLanguage, pageCount, ragErrors.ErrEmptyDocument
	}

	log.Debug("ingest step", "step", jobModel.IngestChunk, "paragraphs", len(paras))
	passages := chunker.ChunkParagraphs(paras, chunker.OptionsFrom(tuning.Chunking))
	model := p.deps.Embedder.Model()
	now := time.Now().UTC()
	chunks := make([]commonModels.Chunk, 0, len(passages))
	for _, passage := range passages {
		text := strings.TrimSpace(passage.Text)
		if text == "" {
			continue
		}
		chunks = append(chunks, commonModels.Chunk{
			Id:             utils.GetNewUUID(),
			DocumentId:     job.DocumentId,
			JurisdictionId: job.JurisdictionId,
			SequenceIndex:  len(chunks),
			PageNumber:     passage.PageNumber,
			ParagraphIndex: passage.ParagraphIndex,
			Text:           text,
			OriginalText:   chunker.OriginalText(paras, passage),
			SourceLanguage: sourceLanguage,
			FileName:       job.FileName,
			SourceUri:      job.SourceUri,
			EmbeddingModel: model,
			CreatedAt:      now,
		})
	}
	if len(chunks) == 0 {
		return nil, sourceLanguage, pageCount, ragErrors.ErrEmptyDocument
	}

	log.Debug("ingest step", "step", jobModel.IngestEmbedding, "chunks", len(chunks))
	if err := p.embed(ctx, chunks); err != nil {
		return nil, sourceLanguage, pageCount, err
	}
	return chunks, sourceLanguage, pageCount, nil
}

// sourceLanguage trusts a declared whitelisted code and detects otherwise.
func (p *pipeline) sourceLanguage(ctx context.Context, declared, text string, t config.LanguageTuning) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && slices.Contains(t.Supported, declared) {
		return declared
	}
	return p.deps.Language.Detect(ctx, strings.ReplaceAll(text, extract.PageBreak, "\n"))
}

// paragraphs normalizes every page into pivot language paragraphs. When the translation keeps the
// paragraph count each paragraph keeps its own original, otherwise the page becomes one paragraph.
func (p *pipeline) paragraphs(ctx context.Context, pages []extract.Page, sourceLanguage string) []chunker.Paragraph {
	pivot := p.deps.Language.Pivot()
	var out []chunker.Paragraph
	for _, page := range pages {
		number := page.Number
		source := extract.Paragraphs(page.Text)
		if len(source) == 0 {
			continue
		}
		if sourceLanguage == pivot {
			for _, text := range source {
				out = append(out, chunker.Paragraph{Text: text, Page: &number})
			}
			continue
		}

		translated := extract.Paragraphs(p.deps.Language.Translate(ctx, strings.Join(source, "\n\n"), sourceLanguage, pivot))
		if len(translated) == len(source) {
			for i := range source {
				original := source[i]
				out = append(out, chunker.Paragraph{Text: translated[i], Page: &number, Original: &original})
			}
			continue
		}
		original := strings.Join(source, "\n\n")
		out = append(out, chunker.Paragraph{Text: strings.Join(translated, " "), Page: &number, Original: &original})
	}
	return out
}

func (p *pipeline) embed(ctx context.Context, chunks []commonModels.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	start := time.Now()
	vectors, err := embedding.Batch(ctx, texts, config.EmbeddingBatchSize, p.deps.Embedder.BatchEmbedding)
	metrics.CaptureDependencyLatency("embedding_batch", time.Since(start))
	if err != nil {
		if !errors.Is(err, ragErrors.ErrEmbeddingProvider) {
			err = fmt.Errorf("%w: %w", ragErrors.ErrEmbeddingProvider, err)
		}
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", ragErrors.ErrEmbeddingProvider, len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	if vectorDB.UniformDimension(chunks) <= 0 {
		return fmt.Errorf("%w: provider returned vectors of differing length", ragErrors.ErrDimensionMismatch)
	}
	return nil
}

// persist replaces whatever an earlier run left for the document, so re-ingestion is idempotent.
func (p *pipeline) persist(ctx context.Context, log *logger_i.Logger, documentId string, chunks []commonModels.Chunk) error {
	removed, err := p.deps.Chunks.DeleteByDocument(ctx, documentId)
	if err != nil {
		return fmt.Errorf("clearing previous chunks: %w", err)
	}
	if removed > 0 {
		log.Info("replacing chunks from an earlier ingestion", "removed", removed)
	}
	if err := p.deps.Chunks.InsertChunks(ctx, documentId, chunks); err != nil {
		return fmt.Errorf("persisting chunks: %w", err)
	}
	return nil
}
