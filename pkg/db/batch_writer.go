package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// WriteFunc performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchWriter buffers write operations and commits every batchSize of them
// in one transaction. Commits happen in submission order on a single
// goroutine, so SQLite sees one writer at a time.
type BatchWriter struct {
	db        *sql.DB
	ctx       context.Context
	batchSize int

	mu     sync.Mutex
	buf    []WriteFunc
	closed bool

	commitCh chan []WriteFunc
	wg       sync.WaitGroup

	// OnError is called for each failed batch. Set it before the first Submit.
	OnError func(error)

	errMu   sync.Mutex
	lastErr error
}

// NewBatchWriter starts a writer committing to db. Once the first batch
// fails, or ctx is done, later batches are discarded and Close reports the
// first error.
func NewBatchWriter(ctx context.Context, db *sql.DB, batchSize int) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 10
	}
	bw := &BatchWriter{
		db:        db,
		ctx:       ctx,
		batchSize: batchSize,
		buf:       make([]WriteFunc, 0, batchSize),
		commitCh:  make(chan []WriteFunc, 2),
	}
	bw.wg.Add(1)
	go bw.committer()
	return bw
}

// Submit enqueues a write function. It blocks while the committer is two
// batches behind.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.batchSize {
		bw.flushLocked()
	}
	return nil
}

// flushLocked assumes bw.mu is held.
func (bw *BatchWriter) flushLocked() {
	if len(bw.buf) == 0 {
		return
	}
	batch := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.batchSize)
	bw.commitCh <- batch
}

func (bw *BatchWriter) committer() {
	defer bw.wg.Done()
	for batch := range bw.commitCh {
		if bw.err() != nil {
			continue
		}
		if err := bw.ctx.Err(); err != nil {
			bw.setErr(fmt.Errorf("batch writer: dropping batch of %d items: %w", len(batch), err))
			continue
		}
		if err := bw.executeBatch(batch); err != nil {
			bw.setErr(err)
		}
	}
}

func (bw *BatchWriter) executeBatch(batch []WriteFunc) error {
	// Without a DB the callbacks run with a nil tx, which tests rely on.
	if bw.db == nil {
		for _, w := range batch {
			if err := w(bw.ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := bw.db.BeginTx(bw.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, w := range batch {
		if err := w(bw.ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch (%d items): %w", len(batch), err)
	}
	return nil
}

func (bw *BatchWriter) setErr(err error) {
	bw.errMu.Lock()
	if bw.lastErr == nil {
		bw.lastErr = err
	}
	bw.errMu.Unlock()
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

func (bw *BatchWriter) err() error {
	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.lastErr
}

// Close flushes the remaining writes, waits for them to commit and returns
// the first error seen.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	bw.flushLocked()
	bw.mu.Unlock()

	close(bw.commitCh)
	bw.wg.Wait()
	return bw.err()
}

// ErrBatchWriterClosed is returned by Submit and Close after Close.
var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

// BatchWriterError is the error type of ErrBatchWriterClosed.
type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
