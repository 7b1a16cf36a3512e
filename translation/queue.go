package translation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/60cod/realtime-translator/internal/metrics"
)

// ErrQueueClosed rejects submissions after Close.
var ErrQueueClosed = errors.New("translation queue closed")

// Outcome is the terminal result of one submitted request: either a
// translation or a non-retryable error, delivered exactly once.
type Outcome struct {
	Text               string
	DetectedSourceLang string
	Err                error
}

// request is one pending translation. A request is resolved or rejected
// precisely once, even across batch retries.
type request struct {
	id         string
	text       string
	targetLang string
	sourceLang string
	enqueuedAt time.Time
	result     chan Outcome
	done       bool
}

// Defaults for QueueConfig zero values.
const (
	DefaultMaxBatchSize    = 10
	DefaultRetryDelay      = 1500 * time.Millisecond
	DefaultInterBatchDelay = 200 * time.Millisecond
)

// QueueConfig holds configuration for a Queue.
type QueueConfig struct {
	Client Client
	// MaxBatchSize caps requests per network call. Default 10.
	MaxBatchSize int
	// RetryDelay is the fixed backoff after a retryable failure. Default 1.5s.
	RetryDelay time.Duration
	// InterBatchDelay smooths the outbound request rate after a
	// successful batch. Default 200ms.
	InterBatchDelay time.Duration
}

// Queue batches pending translation requests and dispatches them with
// a single worker, preserving submission order between requests that
// share a language pair. Retryable failures (429, 5xx, network) are
// retried indefinitely with a fixed backoff; only non-retryable
// failures reject requests.
type Queue struct {
	cfg QueueConfig

	mu      sync.Mutex
	pending []*request
	running bool
	closed  bool
	quit    chan struct{}
}

// NewQueue creates a translation queue around the given client.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Client == nil {
		return nil, errors.New("translation: client required")
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.InterBatchDelay < 0 {
		cfg.InterBatchDelay = 0
	}
	if cfg.InterBatchDelay == 0 {
		cfg.InterBatchDelay = DefaultInterBatchDelay
	}

	return &Queue{
		cfg:  cfg,
		quit: make(chan struct{}),
	}, nil
}

// Submit enqueues a request and returns a channel that delivers its
// Outcome exactly once. sourceLang may be empty to let the service
// detect it. The append and the worker wake-up happen under one lock,
// so submission order is the dispatch order for a given language pair.
func (q *Queue) Submit(text, targetLang, sourceLang string) <-chan Outcome {
	req := &request{
		id:         uuid.NewString(),
		text:       text,
		targetLang: targetLang,
		sourceLang: sourceLang,
		enqueuedAt: time.Now(),
		result:     make(chan Outcome, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		req.result <- Outcome{Err: ErrQueueClosed}
		return req.result
	}
	q.pending = append(q.pending, req)
	metrics.RequestsPending.Set(float64(len(q.pending)))
	if !q.running {
		q.running = true
		go q.worker()
	}
	q.mu.Unlock()

	return req.result
}

// Translate is a blocking convenience wrapper around Submit.
func (q *Queue) Translate(ctx context.Context, text, targetLang, sourceLang string) (Result, error) {
	select {
	case out := <-q.Submit(text, targetLang, sourceLang):
		if out.Err != nil {
			return Result{}, out.Err
		}
		return Result{Text: out.Text, DetectedSourceLang: out.DetectedSourceLang}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Pending returns the number of requests waiting to be dispatched.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects all pending requests and stops the worker after any
// in-flight batch drains to completion or failure on its own.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	rejected := q.pending
	q.pending = nil
	metrics.RequestsPending.Set(0)
	q.mu.Unlock()

	close(q.quit)
	for _, req := range rejected {
		q.deliver(req, Outcome{Err: ErrQueueClosed})
	}
}

// worker drains the pending list one batch at a time. It exits when the
// list empties; the next Submit restarts it.
func (q *Queue) worker() {
	for {
		batch := q.nextBatch()
		if batch == nil {
			return
		}

		texts := make([]string, len(batch))
		for i, req := range batch {
			texts[i] = req.text
		}
		target := batch[0].targetLang
		source := batch[0].sourceLang

		metrics.BatchesDispatched.Inc()
		results, err := q.cfg.Client.Translate(context.Background(), texts, target, source)

		switch {
		case err != nil && IsRetryable(err):
			// At-least-once: the whole batch goes back to the head,
			// ahead of requests that have not been attempted yet.
			metrics.BatchRetries.Inc()
			q.requeueHead(batch)
			if !q.sleep(q.cfg.RetryDelay) {
				return
			}

		case err != nil:
			for _, req := range batch {
				q.deliver(req, Outcome{Err: err})
			}

		case len(results) != len(batch):
			// Positional mapping is impossible; the response is unusable.
			mismatch := fmt.Errorf("translation count mismatch: got %d for %d texts",
				len(results), len(batch))
			for _, req := range batch {
				q.deliver(req, Outcome{Err: mismatch})
			}

		default:
			for i, req := range batch {
				q.deliver(req, Outcome{
					Text:               results[i].Text,
					DetectedSourceLang: results[i].DetectedSourceLang,
				})
			}
			if !q.sleep(q.cfg.InterBatchDelay) {
				return
			}
		}
	}
}

// nextBatch pops up to MaxBatchSize requests sharing the head's
// language pair. Requests with a different pair stay behind in their
// original order and are re-examined next cycle; they reach the head
// once everything ahead of them drains, so nothing starves. Returns nil
// (and marks the worker idle) when the list is empty.
func (q *Queue) nextBatch() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		q.running = false
		return nil
	}

	head := q.pending[0]
	batch := make([]*request, 0, q.cfg.MaxBatchSize)
	rest := q.pending[:0]
	for _, req := range q.pending {
		if len(batch) < q.cfg.MaxBatchSize &&
			req.targetLang == head.targetLang && req.sourceLang == head.sourceLang {
			batch = append(batch, req)
			continue
		}
		rest = append(rest, req)
	}
	q.pending = rest
	metrics.RequestsPending.Set(float64(len(q.pending)))
	return batch
}

// requeueHead puts a failed batch back at the front of the pending
// list, preserving its order relative to everything not yet attempted.
func (q *Queue) requeueHead(batch []*request) {
	q.mu.Lock()
	closed := q.closed
	if !closed {
		q.pending = append(batch, q.pending...)
		metrics.RequestsPending.Set(float64(len(q.pending)))
	}
	q.mu.Unlock()

	if closed {
		for _, req := range batch {
			q.deliver(req, Outcome{Err: ErrQueueClosed})
		}
	}
}

// deliver resolves or rejects a request exactly once.
func (q *Queue) deliver(req *request, out Outcome) {
	q.mu.Lock()
	if req.done {
		q.mu.Unlock()
		return
	}
	req.done = true
	q.mu.Unlock()

	req.result <- out
}

// sleep waits for d unless the queue is closed first.
func (q *Queue) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-q.quit:
		return false
	}
}
