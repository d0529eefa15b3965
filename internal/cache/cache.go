// Package cache implements the transparent, disk-persisted decorator
// around a vcs.Backend: completed revisions are written to rotating
// segment files and indexed by an append-only gzip-compressed index,
// so repeated runs against the same repository avoid re-fetching
// revisions already on disk.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/pepperstats/pepperstats/internal/observability"
	"github.com/pepperstats/pepperstats/internal/vcs"
)

// CorruptError reports that check found an entry that failed to
// decompress, deserialise, or whose serialised id disagreed with its
// index key.
type CorruptError struct {
	ID     string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("cache: corrupt entry %s: %s", e.ID, e.Reason)
}

// Cache wraps a vcs.Backend, serving cached Revisions from disk and
// delegating misses to the wrapped backend.
type Cache struct {
	backend vcs.Backend
	dir     string
	log     *zap.Logger
	metrics *observability.Metrics

	segmentSize int64

	mu       sync.Mutex // guards writer, reader, and index against interleaved put/get
	index    map[string]indexEntry
	appender *indexAppender
	writer   *segmentWriter
	reader   *segmentReader
}

var _ vcs.Backend = (*Cache)(nil)

// Option configures optional Cache behaviour.
type Option func(*Cache)

// WithMetrics registers Prometheus counters for cache hits and
// misses, updated as Revision is served.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithSegmentSize overrides the segment rotation threshold, in bytes.
// A value <= 0 leaves DefaultMaxSegmentSize in effect.
func WithSegmentSize(bytes int) Option {
	return func(c *Cache) {
		if bytes > 0 {
			c.segmentSize = int64(bytes)
		}
	}
}

// Open creates a Cache rooted at <root>/<uuid>/, loading any existing
// index for this repository.
func Open(root string, backend vcs.Backend, log *zap.Logger, opts ...Option) (*Cache, error) {
	uuid, err := backend.UUID()
	if err != nil {
		return nil, vcs.WrapErr("Cache.Open", "", err)
	}
	dir := filepath.Join(root, uuid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create cache dir: %w", err)
	}

	c := &Cache{backend: backend, dir: dir, log: log, index: map[string]indexEntry{}, segmentSize: DefaultMaxSegmentSize}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) indexPath() string { return filepath.Join(c.dir, "index") }

func (c *Cache) load() error {
	entries, err := loadIndex(c.indexPath())
	if err != nil {
		var verr *VersionError
		if errors.As(err, &verr) {
			return err // fatal: unknown version, do not silently clear
		}
		return err
	}
	for _, e := range entries {
		c.index[e.ID] = e
	}
	c.log.Debug("loaded cache index", zap.Int("entries", len(entries)), zap.String("dir", c.dir))
	return nil
}

// UUID, Head, MainBranch, Branches, Iterator, and Finalize forward
// directly to the wrapped backend: the decorator only intercepts the
// operations it caches (§4.5).
func (c *Cache) UUID() (string, error)              { return c.backend.UUID() }
func (c *Cache) Head(branch string) (string, error) { return c.backend.Head(branch) }
func (c *Cache) MainBranch() (string, error)         { return c.backend.MainBranch() }
func (c *Cache) Branches() ([]string, error)         { return c.backend.Branches() }
func (c *Cache) Tags() ([]vcs.Tag, error)            { return c.backend.Tags() }
func (c *Cache) Tree(id string) ([]string, error)    { return c.backend.Tree(id) }
func (c *Cache) Iterator(branch string, start, end int64) ([]string, error) {
	return c.backend.Iterator(branch, start, end)
}
func (c *Cache) Finalize() { c.backend.Finalize() }

// Diffstat checks the cache first (by loading the full Revision, since
// the cache stores complete records), falling back to the wrapped
// backend on miss.
func (c *Cache) Diffstat(id string) (vcs.Diffstat, error) {
	if rev, ok := c.get(id); ok {
		return rev.Diffstat, nil
	}
	return c.backend.Diffstat(id)
}

// Revision serves a cache hit directly, or delegates to the wrapped
// backend on miss and persists the result before returning it. If
// persisting fails, the fetched revision is returned together with
// the write error.
func (c *Cache) Revision(id string) (vcs.Revision, error) {
	if rev, ok := c.get(id); ok {
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return rev, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	rev, err := c.backend.Revision(id)
	if err != nil {
		return vcs.Revision{}, err
	}
	if err := c.put(rev); err != nil {
		return rev, vcs.WrapErr("Cache.Revision", id, fmt.Errorf("persist to cache: %w", err))
	}
	return rev, nil
}

// Prefetch forwards only the ids not already cached to the wrapped
// backend, logging coverage.
func (c *Cache) Prefetch(ids []string) {
	c.mu.Lock()
	var misses []string
	for _, id := range ids {
		if _, ok := c.index[id]; !ok {
			misses = append(misses, id)
		}
	}
	c.mu.Unlock()

	c.log.Info("prefetch coverage",
		zap.Int("cached", len(ids)-len(misses)),
		zap.Int("total", len(ids)))
	if len(misses) > 0 {
		c.backend.Prefetch(misses)
	}
}

func (c *Cache) get(id string) (vcs.Revision, bool) {
	c.mu.Lock()
	entry, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return vcs.Revision{}, false
	}
	if c.reader == nil {
		c.reader = newSegmentReader(c.dir)
	}
	raw, err := c.reader.Read(entry.Segment, entry.Offset)
	c.mu.Unlock()
	if err != nil {
		c.log.Debug("cache read failed, falling through to backend", zap.String("revision", id), zap.Error(err))
		return vcs.Revision{}, false
	}
	rev, err := decodeRevision(raw)
	if err != nil {
		c.log.Debug("cache decode failed, falling through to backend", zap.String("revision", id), zap.Error(err))
		return vcs.Revision{}, false
	}
	return rev, true
}

// putMu serialises put across every Cache in the process.
var putMu sync.Mutex

// put persists rev, guarded by a process-wide mutex so concurrent
// put calls from different driver goroutines never interleave their
// segment writes with their index appends.
func (c *Cache) put(rev vcs.Revision) error {
	putMu.Lock()
	defer putMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer == nil {
		w, err := openSegmentWriter(c.dir, c.segmentSize)
		if err != nil {
			return err
		}
		c.writer = w
	}
	if c.appender == nil {
		a, err := newIndexAppender(c.indexPath())
		if err != nil {
			return err
		}
		c.appender = a
	}

	encoded, err := encodeRevision(rev)
	if err != nil {
		return err
	}
	seg, offset, err := c.writer.Append(encoded)
	if err != nil {
		return err
	}
	entry := indexEntry{ID: rev.ID, Segment: seg, Offset: offset}
	if err := c.appender.Append(entry); err != nil {
		return err
	}
	c.index[rev.ID] = entry
	return nil
}

// Check re-deserialises every indexed entry end-to-end. Any entry
// that fails to decompress, deserialise, or whose decoded id
// disagrees with its index key is considered corrupt, at which point
// the entire cache directory is cleared and reinitialised empty
// (§4.5.2's stricter semantics: clear-on-any-corruption, not
// per-entry skip).
func (c *Cache) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reader := newSegmentReader(c.dir)
	defer reader.Close()

	for id, entry := range c.index {
		raw, err := reader.Read(entry.Segment, entry.Offset)
		if err != nil {
			return c.clearLocked(&CorruptError{ID: id, Reason: err.Error()})
		}
		rev, err := decodeRevision(raw)
		if err != nil {
			return c.clearLocked(&CorruptError{ID: id, Reason: err.Error()})
		}
		if rev.ID != id {
			return c.clearLocked(&CorruptError{ID: id, Reason: "id mismatch"})
		}
	}
	return nil
}

func (c *Cache) clearLocked(cause *CorruptError) error {
	c.log.Info("cache corrupt, clearing", zap.String("reason", cause.Error()))
	if c.writer != nil {
		c.writer.Close()
		c.writer = nil
	}
	if c.reader != nil {
		c.reader.Close()
		c.reader = nil
	}
	backupDir := c.dir + ".corrupt"
	os.RemoveAll(backupDir)
	if err := os.Rename(c.dir, backupDir); err != nil {
		return fmt.Errorf("cache: move aside corrupt cache: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache: recreate cache dir: %w", err)
	}
	c.index = map[string]indexEntry{}
	c.appender = nil
	return cause
}
