package job

import (
	"context"
	"sync/atomic"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

type Service struct {
	JobChannel        chan jobModel.IngestJob
	RequestCount      int64
	DispatcherChannel chan bool
	logger            *logger_i.Logger
}

type ServiceConfig struct {
	JobChannel        chan jobModel.IngestJob
	DispatcherChannel chan bool
}

func InitJobService(cfg ServiceConfig) *Service {
	return &Service{
		JobChannel:        cfg.JobChannel,
		DispatcherChannel: cfg.DispatcherChannel,
		logger:            logger_i.NewLogger("JobService"),
	}
}

// Enqueue hands an ingestion job to the worker pool. The send blocks while the buffer is full so
// uploads slow down instead of piling up, ctx bounds the wait.
func (s *Service) Enqueue(ctx context.Context, job jobModel.IngestJob) error {
	log := s.logger.WithTrace(ctx).With("jobId", job.Id, "documentId", job.DocumentId)

	metrics.IncrementJobsInQueue()
	select {
	case s.JobChannel <- job:
	case <-ctx.Done():
		metrics.DecrementJobsInQueue()
		log.Warn("gave up queueing ingestion job", "error", ctx.Err())
		return ctx.Err()
	}
	log.Info("queued ingestion job")

	// every ingestion asks for a worker, the pool caps itself and idle workers retire
	count := atomic.AddInt64(&s.RequestCount, 1)
	metrics.StartDispatcherSignalCount()
	select {
	case s.DispatcherChannel <- true:
	default:
		log.Debug("dispatcher busy, signal dropped", "count", count, "every", config.RequestsPerNewWorkerCount)
	}
	return nil
}
