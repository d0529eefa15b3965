package gitcli

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/stretchr/testify/require"

	"github.com/pepperstats/pepperstats/internal/queue"
	"github.com/pepperstats/pepperstats/internal/vcs"
)

// fakeGitScript writes a minimal stand-in for the git executable that
// understands exactly the subcommands the metadata and diffstat
// workers invoke, so the prefetcher's concurrency behaviour (S1/S2 in
// §8) can be exercised without a real git binary.
func fakeGitScript(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake git script is a POSIX shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fakegit")
	script := `#!/bin/sh
shift 2 # drop -C <repo>
case "$1" in
  log)
    # git log --no-walk --stdin --format=...: ids arrive newline-
    # separated on stdin, not as argv.
    while IFS= read -r id; do
      printf '\000\nauthor Tester <t@x> 1700000000 +0000\ncommitter Tester <t@x> 1700000000 +0000\n\n    msg for %s\n' "$id"
    done
    ;;
  diff-tree)
    # git diff-tree --stdin: read "child" or "child parent" lines and
    # print a diff for each; a line it cannot resolve as a tree-ish
    # (the sentinel byte) is copied to stdout unchanged, mirroring
    # real git's documented --stdin passthrough behaviour.
    EOT=$(printf '\004')
    while IFS= read -r line; do
      case "$line" in
        "$EOT") printf '%s\n' "$line" ;;
        *) printf 'diff --git a/f.txt b/f.txt\n--- a/f.txt\n+++ b/f.txt\n@@ -1 +1 @@\n-old\n+new\n' ;;
      esac
    done
    ;;
esac
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPrefetcherOutOfOrderRetrieval(t *testing.T) {
	gitExe := fakeGitScript(t)
	log := zaptest.NewLogger(t)
	p := NewPrefetcher(gitExe, "/repo", Options{MetaWorkers: 2, DiffWorkers: 2}, log)
	defer func() { p.Stop(); p.Wait() }()

	ids := []string{"A", "P:B", "P:C"}
	p.Prefetch(ids)

	for _, id := range []string{"P:C", "A", "P:B"} {
		_, ok := p.GetDiffstat(id)
		require.True(t, ok, "diffstat for %s", id)
		_, ok = p.GetMeta(id)
		require.True(t, ok, "meta for %s", id)
	}
}

func TestPrefetcherStopUnblocks(t *testing.T) {
	// No workers started servicing this id: rely on Stop to unblock.
	p := &Prefetcher{
		metaQ: queue.New[string, metaRecord](0),
		diffQ: queue.New[string, vcs.Diffstat](0),
	}
	p.metaQ.Put("never-served")
	p.diffQ.Put("never-served")

	done := make(chan bool, 2)
	go func() {
		_, ok := p.GetMeta("never-served")
		done <- ok
	}()
	go func() {
		_, ok := p.GetDiffstat("never-served")
		done <- ok
	}()
	p.Stop()
	p.Wait()

	require.False(t, <-done)
	require.False(t, <-done)
}
