package template

import (
	"context"
	"runtime"
	"sync"

	"github.com/beevik/etree"
	"golang.org/x/sync/errgroup"

	"docgen/internal/logging"
)

type compileJob struct {
	cache  *Cache
	key    string
	name   string
	doc    *etree.Document
	handle *Handle
}

// Batch collects compile jobs, at most one per stylesheet, and runs them on
// a bounded worker pool. A batch can be reused: every Execute starts a new
// round.
type Batch struct {
	workers int

	mu      sync.Mutex
	pending map[string]*Handle
	jobs    []compileJob
}

// NewBatch returns a batch compiling on up to workers goroutines, or
// GOMAXPROCS when workers <= 0.
func NewBatch(workers int) *Batch {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Batch{workers: workers, pending: map[string]*Handle{}}
}

func (b *Batch) inflight(key string) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[key]
}

func (b *Batch) add(j compileJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[j.key] = j.handle
	b.jobs = append(b.jobs, j)
}

// Len is the number of jobs waiting for Execute.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs)
}

// Execute compiles every scheduled job and returns once all are done. A
// failing job only fails its own handle. When ctx is cancelled, jobs that
// have not started fail with the context error and stay out of the cache;
// Execute then returns ctx.Err().
func (b *Batch) Execute(ctx context.Context) error {
	b.mu.Lock()
	jobs := b.jobs
	b.jobs, b.pending = nil, map[string]*Handle{}
	b.mu.Unlock()

	if len(jobs) == 0 {
		return ctx.Err()
	}
	defer logging.Timer("compiled templates", "jobs", len(jobs), "workers", b.workers)()

	var g errgroup.Group
	g.SetLimit(b.workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				j.handle.fail(j.name + ": " + err.Error())
				return nil
			}
			j.cache.compile(ctx, j)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
