package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fir-api/pkg/jobs"
	"github.com/noah-isme/fir-api/pkg/storage"
)

const purgeEvidenceJob = "purge_evidence"

// EvidenceJanitor removes evidence blobs orphaned by deleted FIRs in the
// background, so a slow object store never holds the delete request open.
type EvidenceJanitor struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewEvidenceJanitor builds a janitor over store. Call Start before use.
func NewEvidenceJanitor(store storage.BlobStore, logger *zap.Logger) *EvidenceJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		err := store.Delete(ctx, job.Key)
		if err == nil || errors.Is(err, storage.ErrObjectNotFound) {
			logger.Info("evidence purged", zap.String("key", job.Key))
			return nil
		}
		return err
	}
	return &EvidenceJanitor{
		queue: jobs.NewQueue("evidence-janitor", handler, jobs.QueueConfig{
			Workers:    2,
			BufferSize: 256,
			MaxRetries: 5,
			RetryDelay: 2 * time.Second,
			Logger:     logger,
		}),
		logger: logger,
	}
}

// Start launches the workers; they exit when ctx is cancelled or Stop is called.
func (j *EvidenceJanitor) Start(ctx context.Context) { j.queue.Start(ctx) }

// Stop waits for in-flight purges to return.
func (j *EvidenceJanitor) Stop() { j.queue.Stop() }

// Schedule queues fileRef for removal. A full or stopped queue leaves the
// blob in place and is only logged.
func (j *EvidenceJanitor) Schedule(fileRef string) {
	if j == nil || fileRef == "" {
		return
	}
	if err := j.queue.Enqueue(jobs.Job{Kind: purgeEvidenceJob, Key: fileRef}); err != nil {
		j.logger.Warn("evidence purge not scheduled", zap.String("key", fileRef), zap.Error(err))
	}
}
