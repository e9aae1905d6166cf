package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/job"
	"github.com/akolanti/CivicRAG/internal/metrics"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

// Ingester is the part of the rag service the pool drives.
type Ingester interface {
	IngestDocument(ctx context.Context, job jobModel.IngestJob) (commonModels.Document, error)
}

var (
	_jobService        *job.Service
	stopWorkerChannel  chan bool
	workerWaitGroup    *sync.WaitGroup
	dispatcherChannel  chan bool
	currentWorkerCount int64
	logger             = logger_i.NewLogger("WorkerPool")
	_ingester          Ingester
	minWorkerCount     = config.MinWorkerCount
	idleWorkerTimeout  = config.IdleWorkerTimeout
	ingestionTimeout   = config.IngestionTimeout
)

func InitServices(jobService *job.Service, ingester Ingester) {
	_jobService = jobService
	_ingester = ingester
	dispatcherChannel = jobService.DispatcherChannel
}

// InitWorkerPool starts the dispatcher with one worker. Closing stopWorkerChan makes every worker
// drain the queue and exit, waitGroup is released once they are all gone.
func InitWorkerPool(stopWorkerChan chan bool, waitGroup *sync.WaitGroup) {
	stopWorkerChannel = stopWorkerChan
	workerWaitGroup = waitGroup
	logger = logger_i.NewLogger("WorkerPool")
	logger.Info("Initializing worker pool")
	createWorker()
	go dispatcher()
}

func dispatcher() {
	logger.Info("Dispatcher started")
	for {
		select {
		case <-stopWorkerChannel:
			logger.Info("Dispatcher stopped")
			return
		case _, ok := <-dispatcherChannel:
			if !ok {
				return
			}
			if atomic.LoadInt64(&currentWorkerCount) < config.MaxWorkerCount && len(_jobService.JobChannel) > 0 {
				logger.Info("Creating new worker", "workerCount", atomic.LoadInt64(&currentWorkerCount))
				createWorker()
			}
		}
	}
}

func createWorker() {
	workerWaitGroup.Add(1)
	atomic.AddInt64(&currentWorkerCount, 1)
	metrics.IncrementActiveWorkerCount()
	go worker()
	logger.Info("Created new worker")
}

func worker() {
	idle := time.NewTimer(idleWorkerTimeout)
	defer idle.Stop()
	for {
		select {
		case currentJob := <-_jobService.JobChannel:
			executeJob(currentJob)
			idle.Reset(idleWorkerTimeout)

		case <-stopWorkerChannel:
			drain()
			removeWorker("Stop worker signal received")
			return

		case <-idle.C:
			if retireIdle() {
				releaseWorker("Idle worker timeout")
				return
			}
			idle.Reset(idleWorkerTimeout)
		}
	}
}

// retireIdle takes an idle worker off the count as long as the pool stays at its floor.
func retireIdle() bool {
	for {
		count := atomic.LoadInt64(&currentWorkerCount)
		if count <= atomic.LoadInt64(&minWorkerCount) {
			return false
		}
		if atomic.CompareAndSwapInt64(&currentWorkerCount, count, count-1) {
			return true
		}
	}
}

// drain finishes whatever is already queued so accepted uploads do not stay processing forever.
func drain() {
	for {
		select {
		case currentJob := <-_jobService.JobChannel:
			executeJob(currentJob)
		default:
			return
		}
	}
}
