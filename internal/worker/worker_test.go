package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/job"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockIngester tracks which jobs were executed
type MockIngester struct {
	ProcessedCount int32
	OnIngest       func(ctx context.Context, j jobModel.IngestJob) (commonModels.Document, error)
}

func (m *MockIngester) IngestDocument(ctx context.Context, j jobModel.IngestJob) (commonModels.Document, error) {
	atomic.AddInt32(&m.ProcessedCount, 1)
	if m.OnIngest != nil {
		return m.OnIngest(ctx, j)
	}
	return commonModels.Document{Id: j.DocumentId, Status: commonModels.DocumentReady}, nil
}

func (m *MockIngester) processed() int32 {
	return atomic.LoadInt32(&m.ProcessedCount)
}

func newJobService(buffer int) *job.Service {
	return job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.IngestJob, buffer),
		DispatcherChannel: make(chan bool, 1),
	})
}

// resetPool puts the package globals back after a test overrides them
func resetPool(t *testing.T) {
	t.Helper()
	atomic.StoreInt64(&currentWorkerCount, 0)
	t.Cleanup(func() {
		atomic.StoreInt64(&currentWorkerCount, 0)
		atomic.StoreInt64(&minWorkerCount, config.MinWorkerCount)
		idleWorkerTimeout = config.IdleWorkerTimeout
		ingestionTimeout = config.IngestionTimeout
	})
}

func stopAndWait(t *testing.T, stop chan bool, wg *sync.WaitGroup) {
	t.Helper()
	close(stop)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop within timeout")
	}
}

func TestWorkerPool_Flow(t *testing.T) {
	resetPool(t)
	jobSvc := newJobService(10)

	var seenTrace atomic.Value
	var hadDeadline atomic.Bool
	mockIngester := &MockIngester{OnIngest: func(ctx context.Context, j jobModel.IngestJob) (commonModels.Document, error) {
		seenTrace.Store(logger_i.TraceId(ctx))
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return commonModels.Document{Id: j.DocumentId, Status: commonModels.DocumentReady, ChunkCount: 3}, nil
	}}
	stopChan := make(chan bool)
	wg := &sync.WaitGroup{}

	InitServices(jobSvc, mockIngester)
	InitWorkerPool(stopChan, wg)

	t.Run("pool starts with one worker", func(t *testing.T) {
		assert.EqualValues(t, 1, atomic.LoadInt64(&currentWorkerCount))
	})

	t.Run("worker processes a queued job with its trace", func(t *testing.T) {
		err := jobSvc.Enqueue(context.Background(), jobModel.IngestJob{Id: "job-1", DocumentId: "doc-1", TraceId: "trace-1", CreatedTime: time.Now()})
		require.NoError(t, err)

		require.Eventually(t, func() bool { return mockIngester.processed() == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, "trace-1", seenTrace.Load())
		assert.True(t, hadDeadline.Load())
	})

	t.Run("stop signal retires workers", func(t *testing.T) {
		stopAndWait(t, stopChan, wg)
		assert.EqualValues(t, 0, atomic.LoadInt64(&currentWorkerCount))
	})
}

func TestWorkerPool_FailedJobDoesNotStopWorker(t *testing.T) {
	resetPool(t)
	jobSvc := newJobService(10)
	mockIngester := &MockIngester{OnIngest: func(ctx context.Context, j jobModel.IngestJob) (commonModels.Document, error) {
		if j.Id == "bad" {
			return commonModels.Document{Id: j.DocumentId, Status: commonModels.DocumentFailed}, errors.New("extraction failed")
		}
		return commonModels.Document{Id: j.DocumentId, Status: commonModels.DocumentReady}, nil
	}}
	stopChan := make(chan bool)
	wg := &sync.WaitGroup{}
	InitServices(jobSvc, mockIngester)
	InitWorkerPool(stopChan, wg)

	require.NoError(t, jobSvc.Enqueue(context.Background(), jobModel.IngestJob{Id: "bad", DocumentId: "doc-bad"}))
	require.NoError(t, jobSvc.Enqueue(context.Background(), jobModel.IngestJob{Id: "good", DocumentId: "doc-good"}))

	require.Eventually(t, func() bool { return mockIngester.processed() == 2 }, time.Second, 5*time.Millisecond)
	stopAndWait(t, stopChan, wg)
}

func TestWorkerPool_DispatcherAddsWorkerForBacklog(t *testing.T) {
	resetPool(t)
	jobSvc := newJobService(10)
	release := make(chan struct{})
	mockIngester := &MockIngester{OnIngest: func(ctx context.Context, j jobModel.IngestJob) (commonModels.Document, error) {
		<-release
		return commonModels.Document{Id: j.DocumentId}, nil
	}}
	stopChan := make(chan bool)
	wg := &sync.WaitGroup{}
	InitServices(jobSvc, mockIngester)
	InitWorkerPool(stopChan, wg)

	// the first worker blocks on job 1, the backlog makes the dispatcher add another
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, jobSvc.Enqueue(context.Background(), jobModel.IngestJob{Id: id, DocumentId: "doc-" + id}))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt64(&currentWorkerCount) >= 2 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt64(&currentWorkerCount), config.MaxWorkerCount)

	close(release)
	require.Eventually(t, func() bool { return mockIngester.processed() == 3 }, time.Second, 5*time.Millisecond)
	stopAndWait(t, stopChan, wg)
}

func TestWorkerPool_DrainsQueueOnStop(t *testing.T) {
	resetPool(t)
	jobSvc := newJobService(10)
	mockIngester := &MockIngester{}
	InitServices(jobSvc, mockIngester)

	wg := &sync.WaitGroup{}
	stopChan := make(chan bool)
	workerWaitGroup = wg
	stopWorkerChannel = stopChan

	for _, id := range []string{"1", "2", "3"} {
		jobSvc.JobChannel <- jobModel.IngestJob{Id: id}
	}
	close(stopChan)
	createWorker()
	wg.Wait()

	assert.EqualValues(t, 3, mockIngester.processed())
	assert.Empty(t, jobSvc.JobChannel)
}

func TestWorker_IdleTimeout(t *testing.T) {
	resetPool(t)
	idleWorkerTimeout = 20 * time.Millisecond
	atomic.StoreInt64(&minWorkerCount, 1)

	jobSvc := newJobService(1)
	InitServices(jobSvc, &MockIngester{})

	wg := &sync.WaitGroup{}
	stopChan := make(chan bool)
	workerWaitGroup = wg
	stopWorkerChannel = stopChan

	createWorker()
	createWorker()
	createWorker()

	require.Eventually(t, func() bool { return atomic.LoadInt64(&currentWorkerCount) == 1 }, time.Second, 5*time.Millisecond)

	// the last worker is the floor and never retires
	time.Sleep(5 * idleWorkerTimeout)
	assert.EqualValues(t, 1, atomic.LoadInt64(&currentWorkerCount))

	stopAndWait(t, stopChan, wg)
}
