package gitcli

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pepperstats/pepperstats/internal/observability"
	"github.com/pepperstats/pepperstats/internal/queue"
	"github.com/pepperstats/pepperstats/internal/vcs"
)

// Prefetcher owns two JobQueues (metadata, diffstat) and a pool of
// worker goroutines per queue, each metadata worker spawning a fresh
// subprocess per batch and each diffstat worker holding one
// persistent subprocess for the run's duration.
type Prefetcher struct {
	gitExe   string
	repoPath string
	log      *zap.Logger

	metaQ *queue.Queue[string, metaRecord]
	diffQ *queue.Queue[string, vcs.Diffstat]

	wg sync.WaitGroup
}

// Options configures pool sizing and queue capacity. A zero value for
// either worker count derives it from the CPU count.
type Options struct {
	MetaWorkers   int
	DiffWorkers   int
	MetaBatchSize int
	QueueCapacity int
	Metrics       *observability.Metrics
}

func defaultWorkerCount() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// NewPrefetcher constructs and starts a Prefetcher's worker pools.
func NewPrefetcher(gitExe, repoPath string, opts Options, log *zap.Logger) *Prefetcher {
	metaWorkers := opts.MetaWorkers
	if metaWorkers <= 0 {
		metaWorkers = defaultWorkerCount()
	}
	diffWorkers := opts.DiffWorkers
	if diffWorkers <= 0 {
		diffWorkers = defaultWorkerCount()
	}
	metaBatchSize := opts.MetaBatchSize
	if metaBatchSize <= 0 {
		metaBatchSize = DefaultMetaBatchSize
	}

	p := &Prefetcher{
		gitExe:   gitExe,
		repoPath: repoPath,
		log:      log,
		metaQ:    queue.New[string, metaRecord](opts.QueueCapacity),
		diffQ:    queue.New[string, vcs.Diffstat](opts.QueueCapacity),
	}

	log.Info("starting prefetcher worker pools",
		zap.Int("meta_workers", metaWorkers),
		zap.Int("diff_workers", diffWorkers))

	if opts.Metrics != nil {
		opts.Metrics.WorkerPoolSize.WithLabelValues("meta").Set(float64(metaWorkers))
		opts.Metrics.WorkerPoolSize.WithLabelValues("diff").Set(float64(diffWorkers))
	}

	// metaAlive/diffAlive track how many workers in each pool are still
	// running; the last one standing stops its pool's queue, so a
	// caller blocked in GetMeta/GetDiffstat for an id no worker will
	// ever finish unblocks instead of hanging forever.
	var metaAlive atomic.Int32
	metaAlive.Store(int32(metaWorkers))
	var diffAlive atomic.Int32
	diffAlive.Store(int32(diffWorkers))

	for i := 0; i < metaWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() {
				if metaAlive.Add(-1) == 0 {
					p.metaQ.Stop()
				}
			}()
			metaWorker(p.gitExe, p.repoPath, metaBatchSize, p.metaQ, p.log)
		}()
	}
	for i := 0; i < diffWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() {
				if diffAlive.Add(-1) == 0 {
					p.diffQ.Stop()
				}
			}()
			diffWorker(p.gitExe, p.repoPath, p.diffQ, p.log)
		}()
	}
	return p
}

// Prefetch submits ids to both the metadata and diffstat queues.
func (p *Prefetcher) Prefetch(ids []string) {
	p.metaQ.Put(ids...)
	p.diffQ.Put(ids...)
}

// GetMeta blocks until id's metadata is terminal.
func (p *Prefetcher) GetMeta(id string) (metaRecord, bool) {
	return p.metaQ.GetResult(id)
}

// GetDiffstat blocks until id's diffstat is terminal.
func (p *Prefetcher) GetDiffstat(id string) (vcs.Diffstat, bool) {
	return p.diffQ.GetResult(id)
}

// WillFetchMeta reports whether id is already tracked by the metadata
// queue.
func (p *Prefetcher) WillFetchMeta(id string) bool { return p.metaQ.HasArg(id) }

// WillFetchDiffstat reports whether id is already tracked by the
// diffstat queue.
func (p *Prefetcher) WillFetchDiffstat(id string) bool { return p.diffQ.HasArg(id) }

// Stop drains and stops both queues, unblocking any waiter.
func (p *Prefetcher) Stop() {
	p.metaQ.Stop()
	p.diffQ.Stop()
}

// Wait joins every worker goroutine. Callers must call Stop before
// Wait, or Wait blocks forever; destroying a Prefetcher without
// Stop+Wait is a programming error (Backend.Finalize performs the
// orderly Stop-then-Wait sequence).
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}
