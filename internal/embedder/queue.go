package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dshills/livecontext-mcp/pkg/types"
)

// ErrQueueClosed is returned by Embed after Close
var ErrQueueClosed = fmt.Errorf("embedding queue closed: %w", types.ErrEmbeddingUnavailable)

// Priority orders requests waiting for an embedder worker
type Priority int

const (
	// PriorityBulk is used for background indexing
	PriorityBulk Priority = iota
	// PriorityInteractive is used for query text and is served first
	PriorityInteractive
)

type job struct {
	ctx    context.Context
	text   string
	result chan jobResult
}

type jobResult struct {
	vector []float32
	err    error
}

// Queue serializes access to an Embedder through a bounded queue served by
// a fixed number of workers. Interactive requests are dequeued before bulk
// requests.
type Queue struct {
	embedder    Embedder
	interactive chan *job
	bulk        chan *job
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	calls       atomic.Int64
}

// NewQueue starts workers goroutines over e. size bounds each priority lane.
func NewQueue(e Embedder, workers, size int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		embedder:    e,
		interactive: make(chan *job, size),
		bulk:        make(chan *job, size),
		done:        make(chan struct{}),
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Embed returns the vector for text. It blocks while the lane is full.
// Provider failures, cancellation and a closed queue all match
// types.ErrEmbeddingUnavailable.
func (q *Queue) Embed(ctx context.Context, p Priority, text string) ([]float32, error) {
	j := &job{ctx: ctx, text: text, result: make(chan jobResult, 1)}

	lane := q.bulk
	if p == PriorityInteractive {
		lane = q.interactive
	}

	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	select {
	case lane <- j:
	case <-ctx.Done():
		return nil, Unavailable(ctx.Err())
	case <-q.done:
		return nil, ErrQueueClosed
	}

	select {
	case r := <-j.result:
		return r.vector, r.err
	case <-ctx.Done():
		return nil, Unavailable(ctx.Err())
	case <-q.done:
		return nil, ErrQueueClosed
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		// drain interactive work first
		select {
		case j := <-q.interactive:
			q.run(j)
			continue
		default:
		}

		select {
		case j := <-q.interactive:
			q.run(j)
		case j := <-q.bulk:
			q.run(j)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) run(j *job) {
	if err := j.ctx.Err(); err != nil {
		j.result <- jobResult{err: Unavailable(err)}
		return
	}

	q.calls.Add(1)
	vectors, err := q.embedder.Embed(j.ctx, []string{j.text})
	if err != nil {
		j.result <- jobResult{err: Unavailable(err)}
		return
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		j.result <- jobResult{err: Unavailable(errors.New("empty embedding"))}
		return
	}
	j.result <- jobResult{vector: vectors[0]}
}

// Calls returns how many requests reached the underlying embedder
func (q *Queue) Calls() int64 {
	return q.calls.Load()
}

// Dimension returns the vector length of the underlying model, 0 while
// still unknown
func (q *Queue) Dimension() int { return q.embedder.Dimension() }

// Provider returns the provider name of the underlying embedder
func (q *Queue) Provider() string { return q.embedder.Provider() }

// Model returns the model name of the underlying embedder
func (q *Queue) Model() string { return q.embedder.Model() }

// Close stops the workers. In-flight calls finish; queued requests fail
// with ErrQueueClosed. The underlying embedder is not closed.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
	return nil
}
