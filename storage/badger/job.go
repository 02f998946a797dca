package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Queued jobs are indexed under a pending prefix keyed by enqueue time, so
// Dequeue claims the oldest first. Claiming happens in a single conflict-
// retried transaction, which keeps delivery at-least-once across
// concurrent dispatchers.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	return &JobRepository{
		backend: backend,
	}, nil
}

// Close releases resources. JobRepository has no resources to release.
func (r *JobRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Enqueue persists a job in Queued status and indexes it for dequeue.
func (r *JobRepository) Enqueue(ctx context.Context, job *core.Job) error {
	if err := core.ValidateJob(job); err != nil {
		return err
	}

	return r.backend.WithTxRetry(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		job.Status = core.JobQueued
		if job.EnqueuedAt.IsZero() {
			job.EnqueuedAt = now
		}
		job.UpdatedAt = now

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		pendingKey := makeJobPendingKey(job.EnqueuedAt.UnixMicro(), job.Id)
		if err := tx.Set(pendingKey, []byte(job.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Dequeue claims the oldest queued job and moves it to Running.
func (r *JobRepository) Dequeue(ctx context.Context) (*core.Job, error) {
	var claimed *core.Job
	err := r.backend.WithTxRetry(func(tx *badger.Txn) error {
		claimed = nil

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPendingPrefix + ":")
		iter := tx.NewIterator(opts)

		type pending struct {
			key   []byte
			jobId string
		}
		var candidates []pending
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var jobId string
			err := item.Value(func(val []byte) error {
				jobId = string(val)
				return nil
			})
			if err != nil {
				iter.Close()
				return err
			}
			candidates = append(candidates, pending{key: item.KeyCopy(nil), jobId: jobId})
		}
		iter.Close()

		for _, candidate := range candidates {
			job, err := readJob(tx, makeJobKey(candidate.jobId))
			if err != nil {
				return err
			}

			// A stale index entry (job gone or already claimed) is
			// cleaned up in passing.
			if job == nil || job.Status != core.JobQueued {
				if err := tx.Delete(candidate.key); err != nil {
					return err
				}
				continue
			}

			job.Status = core.JobRunning
			job.Attempts++
			job.UpdatedAt = time.Now().UTC()

			if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
				return err
			}
			if err := tx.Delete(candidate.key); err != nil {
				return err
			}
			claimed = job
			break
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, storage.ErrNotFound
	}
	return claimed, nil
}

// UpdateJob persists job mutations with a monotonic status guard.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.Job) error {
	return r.backend.WithTxRetry(func(tx *badger.Txn) error {
		stored, err := readJob(tx, makeJobKey(job.Id))
		if err != nil {
			return err
		}
		if stored == nil {
			return storage.ErrNotFound
		}
		if stored.Terminal() && job.Status != stored.Status {
			return storage.ErrInvalidTransition
		}
		if job.Status < stored.Status {
			return storage.ErrInvalidTransition
		}

		job.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.Job, error) {
	var job *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return job, err
}

// RequeueJob moves a Failed job back to Queued for another attempt. The new
// pending index entry is keyed by the current time, so retried jobs go to
// the back of the queue.
func (r *JobRepository) RequeueJob(ctx context.Context, id string) error {
	return r.backend.WithTxRetry(func(tx *badger.Txn) error {
		job, err := readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		if job.Status != core.JobFailed || job.Canceled {
			return storage.ErrInvalidTransition
		}

		now := time.Now().UTC()
		job.Status = core.JobQueued
		job.ErrorKind = ""
		job.ErrorMessage = ""
		job.UpdatedAt = now

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		pendingKey := makeJobPendingKey(now.UnixMicro(), job.Id)
		if err := tx.Set(pendingKey, []byte(job.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// CancelJob marks a non-terminal job canceled. A still-queued job settles
// as Failed immediately; a running job keeps the flag for its worker to
// observe at the next stage boundary.
func (r *JobRepository) CancelJob(ctx context.Context, id string) error {
	return r.backend.WithTxRetry(func(tx *badger.Txn) error {
		job, err := readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		if job.Terminal() {
			return storage.ErrInvalidTransition
		}
		if job.Canceled {
			return tx.Commit()
		}

		job.Canceled = true
		if job.Status == core.JobQueued {
			job.Status = core.JobFailed
			job.ErrorKind = core.KindCanceled
			job.ErrorMessage = "canceled before execution"
		}
		job.UpdatedAt = time.Now().UTC()

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readJob reads a job from the transaction.
// Returns nil, nil when the key is absent.
func readJob(tx *badger.Txn, key []byte) (*core.Job, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.Job
	err = item.Value(func(val []byte) error {
		var err error
		job, err = storage.UnmarshalJob(val)
		return err
	})
	return job, err
}
