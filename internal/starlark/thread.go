package starlark

import (
	"log/slog"
	"sync"

	"go.starlark.net/starlark"
)

// DefaultMaxSteps caps the computation steps of one script call.
const DefaultMaxSteps uint64 = 1_000_000

// ThreadPool manages a pool of Starlark threads so concurrent rule
// executions do not allocate a thread per file.
type ThreadPool struct {
	mu       sync.Mutex
	threads  []*starlark.Thread
	maxSize  int
	maxSteps uint64
	logger   *slog.Logger
}

// NewThreadPool creates a thread pool. maxSize bounds idle threads;
// maxSteps bounds each Get..Put cycle (zero uses DefaultMaxSteps).
func NewThreadPool(maxSize int, maxSteps uint64, logger *slog.Logger) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ThreadPool{
		threads:  make([]*starlark.Thread, 0, maxSize),
		maxSize:  maxSize,
		maxSteps: maxSteps,
		logger:   logger,
	}
}

// Get retrieves a thread from the pool or creates a new one.
// The thread name is used for error reporting. The step budget is reset
// relative to the steps the thread already executed.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.threads); n > 0 {
		thread = p.threads[n-1]
		p.threads = p.threads[:n-1]
	}
	p.mu.Unlock()

	if thread == nil {
		logger := p.logger
		thread = &starlark.Thread{
			Print: func(th *starlark.Thread, msg string) {
				logger.Debug("script print", "script", th.Name, "msg", msg)
			},
		}
	}
	thread.Name = name
	thread.SetMaxExecutionSteps(thread.ExecutionSteps() + p.maxSteps)
	return thread
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded. Threads that were
// cancelled must not be returned.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of idle threads.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}
