package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

func executeJob(job jobModel.IngestJob) {
	metrics.DecrementJobsInQueue()
	start := time.Now()

	ctxTrace := logger_i.ContextWithTrace(context.Background(), job.TraceId)
	ctx, cancel := context.WithTimeout(ctxTrace, ingestionTimeout)
	defer cancel()

	log := logger.WithTrace(ctx).With("jobId", job.Id, "documentId", job.DocumentId)
	log.Debug("Processing ingestion job", "file", job.FileName, "queuedFor", start.Sub(job.CreatedTime))

	doc, err := _ingester.IngestDocument(ctx, job)
	if err != nil {
		log.Error("Ingestion failed", "status", doc.Status, "error", err, "elapsed", time.Since(start))
		return
	}
	log.Info("Ingestion finished", "status", doc.Status, "chunks", doc.ChunkCount, "elapsed", time.Since(start))
}

func removeWorker(reason string) {
	atomic.AddInt64(&currentWorkerCount, -1)
	releaseWorker(reason)
}

// releaseWorker is removeWorker for a worker already taken off the count.
func releaseWorker(reason string) {
	metrics.DecrementActiveWorkerCount()
	logger.Info("Removed worker", "reason", reason, "workerCount", atomic.LoadInt64(&currentWorkerCount))
	workerWaitGroup.Done()
}
