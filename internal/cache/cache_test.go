package cache

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pepperstats/pepperstats/internal/vcs"
)

// fakeBackend is a minimal in-memory vcs.Backend stand-in, grounded
// on the same shape the original tool's tests fake a backend with: a
// fixed revision table plus call counters so tests can assert cache
// transparency (the same revision comes back whether served from the
// backend or from disk) and prefetch pass-through.
type fakeBackend struct {
	revisions   map[string]vcs.Revision
	revCalls    map[string]int
	prefetched  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{revisions: map[string]vcs.Revision{}, revCalls: map[string]int{}}
}

func (f *fakeBackend) UUID() (string, error)              { return "fake-uuid", nil }
func (f *fakeBackend) Head(string) (string, error)        { return "", nil }
func (f *fakeBackend) MainBranch() (string, error)        { return "main", nil }
func (f *fakeBackend) Branches() ([]string, error)        { return nil, nil }
func (f *fakeBackend) Tags() ([]vcs.Tag, error)            { return nil, nil }
func (f *fakeBackend) Tree(string) ([]string, error)       { return nil, nil }
func (f *fakeBackend) Iterator(string, int64, int64) ([]string, error) { return nil, nil }
func (f *fakeBackend) Finalize()                          {}
func (f *fakeBackend) Prefetch(ids []string)               { f.prefetched = append(f.prefetched, ids...) }

func (f *fakeBackend) Diffstat(id string) (vcs.Diffstat, error) {
	rev, ok := f.revisions[id]
	if !ok {
		return nil, fmt.Errorf("no such revision %s", id)
	}
	return rev.Diffstat, nil
}

func (f *fakeBackend) Revision(id string) (vcs.Revision, error) {
	f.revCalls[id]++
	rev, ok := f.revisions[id]
	if !ok {
		return vcs.Revision{}, fmt.Errorf("no such revision %s", id)
	}
	return rev, nil
}

func sampleRevision(id string) vcs.Revision {
	return vcs.Revision{
		ID:      id,
		Date:    1700000000,
		Author:  "Tester",
		Message: "a message\nwith two lines",
		Diffstat: vcs.Diffstat{
			"a.txt": {LinesAdded: 3, BytesAdded: 30, LinesRemoved: 1, BytesRemoved: 5},
		},
	}
}

func newTestCache(t *testing.T, backend vcs.Backend) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), backend, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

// TestRoundTrip covers invariant 3: put then get returns a
// structurally equal Revision.
func TestRoundTrip(t *testing.T) {
	fb := newFakeBackend()
	rev := sampleRevision("abc123")
	fb.revisions[rev.ID] = rev
	c := newTestCache(t, fb)

	got, err := c.Revision(rev.ID)
	require.NoError(t, err)
	require.Equal(t, rev, got)

	got2, ok := c.get(rev.ID)
	require.True(t, ok)
	require.Equal(t, rev, got2)
}

// TestTransparency covers invariant 4: whether served from a fresh
// cache (miss path) or a populated one (hit path), Revision returns
// the same value, and the backend is queried exactly once.
func TestTransparency(t *testing.T) {
	fb := newFakeBackend()
	rev := sampleRevision("deadbeef")
	fb.revisions[rev.ID] = rev
	c := newTestCache(t, fb)

	first, err := c.Revision(rev.ID)
	require.NoError(t, err)
	require.Equal(t, rev, first)
	require.Equal(t, 1, fb.revCalls[rev.ID])

	second, err := c.Revision(rev.ID)
	require.NoError(t, err)
	require.Equal(t, rev, second)
	require.Equal(t, 1, fb.revCalls[rev.ID], "second call must be served from cache, not the backend")
}

func TestPrefetchPartitionsMisses(t *testing.T) {
	fb := newFakeBackend()
	cachedRev := sampleRevision("already-cached")
	fb.revisions[cachedRev.ID] = cachedRev
	c := newTestCache(t, fb)
	_, err := c.Revision(cachedRev.ID)
	require.NoError(t, err)

	c.Prefetch([]string{"already-cached", "new-one"})
	require.Equal(t, []string{"new-one"}, fb.prefetched)
}

// TestSegmentRotation covers invariant 6: enough data forces at least
// a second segment file.
func TestSegmentRotation(t *testing.T) {
	fb := newFakeBackend()
	c := newTestCache(t, fb)

	big := make([]byte, 256*1024)
	rand.New(rand.NewSource(1)).Read(big)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("rev-%d", i)
		rev := vcs.Revision{
			ID:      id,
			Date:    1700000000,
			Author:  "Tester",
			Message: string(big), // pseudo-random, so deflate cannot shrink it
		}
		require.NoError(t, c.put(rev))
	}
	require.GreaterOrEqual(t, c.writer.index, uint32(1), "expected at least one rotation")
}

// TestCheckClearsCorruption covers scenario S5: an index entry
// pointing past end-of-file causes Check to clear the cache.
func TestCheckClearsCorruption(t *testing.T) {
	fb := newFakeBackend()
	c := newTestCache(t, fb)

	c.mu.Lock()
	c.index["ghost"] = indexEntry{Segment: 99, Offset: 0}
	c.mu.Unlock()

	err := c.Check()
	require.Error(t, err)
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	require.Empty(t, c.index)
}

func TestReopenLoadsPersistedIndex(t *testing.T) {
	dir := t.TempDir()
	log := zaptest.NewLogger(t)
	fb := newFakeBackend()
	rev := sampleRevision("persisted")
	fb.revisions[rev.ID] = rev

	c1, err := Open(dir, fb, log)
	require.NoError(t, err)
	_, err = c1.Revision(rev.ID)
	require.NoError(t, err)

	c2, err := Open(dir, fb, log)
	require.NoError(t, err)
	got, ok := c2.get(rev.ID)
	require.True(t, ok)
	require.Equal(t, rev, got)
}
