package gitcli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pepperstats/pepperstats/internal/procpipe"
	"github.com/pepperstats/pepperstats/internal/queue"
	"github.com/pepperstats/pepperstats/internal/vcs"
)

// diffWorker holds one long-lived subprocess for its entire life:
// each pulled id writes one request line, a sentinel line, then reads
// a sentinel-terminated diff response.
func diffWorker(gitExe, repoPath string, q *queue.Queue[string, vcs.Diffstat], log *zap.Logger) {
	pipe, err := procpipe.Start(diffDriverArgv(gitExe, repoPath))
	if err != nil {
		log.Debug("diffstat subprocess failed to start", zap.Error(err))
		q.FailRemaining()
		return
	}
	defer func() {
		if relErr := pipe.Release(); relErr != nil {
			log.Debug("diffstat subprocess exited with error", zap.Error(relErr))
		}
	}()

	for {
		id, ok := q.GetArg()
		if !ok {
			return
		}
		stat, err := requestDiffstat(pipe, id)
		if err != nil {
			log.Debug("diffstat worker request failed", zap.String("revision", id), zap.Error(err))
			q.Failed(id)
			// The subprocess is assumed dead; fail every other
			// in-flight id in this pool rather than hang callers,
			// per the no-respawn-within-a-run policy.
			q.FailRemaining()
			return
		}
		q.Done(id, stat)
	}
}

// requestDiffstat writes one revision spec line followed by a sentinel
// line to the driver's stdin. `git diff-tree --stdin` cannot resolve
// the sentinel byte as a tree-ish, so per its documented passthrough
// behaviour for unrecognised stdin lines, it copies that line to
// stdout unchanged once it has finished writing the requested diff —
// giving the reader an unambiguous per-request terminator without any
// cooperation from a wrapper script.
func requestDiffstat(pipe *procpipe.Pipe, id string) (vcs.Diffstat, error) {
	parent, child := vcs.SplitID(id)
	var req string
	if parent == "" {
		req = child + "\n"
	} else {
		req = child + " " + parent + "\n"
	}
	if _, err := pipe.Write([]byte(req)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if _, err := pipe.Write([]byte{procpipe.Sentinel, '\n'}); err != nil {
		return nil, fmt.Errorf("write sentinel: %w", err)
	}
	diffText, err := pipe.ReadUntilSentinel()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseDiffstat(diffText), nil
}

// diffDriverArgv is `git diff-tree`'s own --stdin mode: one real git
// process, invoked directly (never through a shell), that stays
// resident for the worker's entire lifetime and serves every id it is
// given by reading revision specs from its stdin and writing diffs to
// its stdout, exactly as the original tool's GitDiffstatPipe does.
func diffDriverArgv(gitExe, repoPath string) []string {
	return []string{gitExe, "-C", repoPath, "diff-tree", "-U0", "--no-renames", "--stdin", "--root"}
}
