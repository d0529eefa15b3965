// Package gitcli is the primary, spec-mandated Backend implementation:
// it drives the git executable as a subprocess, exactly as the
// upstream tool this module's behaviour is modelled on does.
package gitcli

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pepperstats/pepperstats/internal/procpipe"
	"github.com/pepperstats/pepperstats/internal/vcs"
)

// Backend drives `git` as a subprocess to satisfy vcs.Backend.
type Backend struct {
	gitExe   string
	repoPath string
	gitDir   string
	log      *zap.Logger

	mu         sync.Mutex
	prefetcher *Prefetcher
	opts       Options
}

var _ vcs.Backend = (*Backend)(nil)

// Open locates a git executable (respecting gitExeOverride, falling
// back to a PATH search) and resolves repoPath to the repository
// root. Failing to locate git is fatal, per §6.
func Open(repoPath, gitExeOverride string, opts Options, log *zap.Logger) (*Backend, error) {
	gitExe := gitExeOverride
	if gitExe == "" {
		found, err := exec.LookPath("git")
		if err != nil {
			return nil, fmt.Errorf("gitcli: locate git executable on PATH: %w", err)
		}
		gitExe = found
	}

	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("gitcli: resolve repo path: %w", err)
	}
	root, err := procpipe.Run([]string{gitExe, "-C", abs, "rev-parse", "--show-toplevel"})
	if err != nil {
		return nil, fmt.Errorf("gitcli: open repository: %w", err)
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("gitcli: open repository: empty toplevel")
	}

	gitDirOut, err := procpipe.Run([]string{gitExe, "-C", root, "rev-parse", "--git-dir"})
	if err != nil {
		return nil, fmt.Errorf("gitcli: resolve git-dir: %w", err)
	}
	gitDir := strings.TrimSpace(gitDirOut)
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(root, gitDir)
	}

	return &Backend{gitExe: gitExe, repoPath: root, gitDir: gitDir, log: log, opts: opts}, nil
}

func (b *Backend) run(argv ...string) (string, error) {
	full := append([]string{b.gitExe, "-C", b.repoPath}, argv...)
	return procpipe.Run(full)
}

// UUID returns a cached root commit id, keyed by branch, reusing the
// sidecar cache when the current head descends from the cached head.
func (b *Backend) UUID() (string, error) {
	branch, err := b.MainBranch()
	if err != nil {
		return "", vcs.WrapErr("UUID", "", err)
	}
	head, err := b.Head(branch)
	if err != nil {
		return "", vcs.WrapErr("UUID", "", err)
	}

	if entry, ok := readSidecar(b.gitDir, branch); ok {
		if entry.Head == head {
			return entry.Root, nil
		}
		if b.isAncestor(entry.Head, head) {
			if err := writeSidecar(b.gitDir, sidecarEntry{Branch: branch, Head: head, Root: entry.Root}); err != nil {
				b.log.Debug("failed to refresh uuid sidecar", zap.Error(err))
			}
			return entry.Root, nil
		}
	}

	root, err := b.computeRoot(branch)
	if err != nil {
		return "", vcs.WrapErr("UUID", "", err)
	}
	if err := writeSidecar(b.gitDir, sidecarEntry{Branch: branch, Head: head, Root: root}); err != nil {
		b.log.Debug("failed to write uuid sidecar", zap.Error(err))
	}
	return root, nil
}

// isAncestor reports whether oldHead is an ancestor of head, so the
// sidecar-cached root commit for oldHead can be safely reused.
// `merge-base --is-ancestor` exits 0 only in that case and non-zero
// when oldHead is unrelated to head (e.g. across a history rewrite)
// or no longer exists.
func (b *Backend) isAncestor(oldHead, head string) bool {
	_, err := b.run("merge-base", "--is-ancestor", oldHead, head)
	return err == nil
}

func (b *Backend) computeRoot(branch string) (string, error) {
	out, err := b.run("rev-list", "--max-parents=0", branch)
	if err != nil {
		return "", fmt.Errorf("compute root commit: %w", err)
	}
	lines := strings.Fields(out)
	if len(lines) == 0 {
		return "", fmt.Errorf("no root commit found for %s", branch)
	}
	return lines[len(lines)-1], nil
}

// Head returns the newest revision id on branch (empty branch means
// current HEAD).
func (b *Backend) Head(branch string) (string, error) {
	ref := "HEAD"
	if branch != "" {
		ref = branch
	}
	out, err := b.run("rev-parse", ref)
	if err != nil {
		return "", vcs.WrapErr("Head", branch, err)
	}
	return strings.TrimSpace(out), nil
}

// MainBranch returns the repository's default branch name.
func (b *Backend) MainBranch() (string, error) {
	out, err := b.run("symbolic-ref", "--short", "HEAD")
	if err != nil {
		// Detached HEAD: fall back to origin/HEAD's target, if any.
		out2, err2 := b.run("symbolic-ref", "--short", "refs/remotes/origin/HEAD")
		if err2 != nil {
			return "", vcs.WrapErr("MainBranch", "", err)
		}
		return strings.TrimPrefix(strings.TrimSpace(out2), "origin/"), nil
	}
	return strings.TrimSpace(out), nil
}

// Branches lists all local branch names.
func (b *Backend) Branches() ([]string, error) {
	out, err := b.run("for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, vcs.WrapErr("Branches", "", err)
	}
	return splitLines(out), nil
}

// Tags lists all tags.
func (b *Backend) Tags() ([]vcs.Tag, error) {
	out, err := b.run("for-each-ref", "--format=%(objectname) %(refname:short)", "refs/tags/")
	if err != nil {
		return nil, vcs.WrapErr("Tags", "", err)
	}
	var tags []vcs.Tag
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		tags = append(tags, vcs.Tag{ID: fields[0], Name: fields[1]})
	}
	return tags, nil
}

// Tree lists paths present at id, or at HEAD if id is empty.
func (b *Backend) Tree(id string) ([]string, error) {
	ref := id
	if ref == "" {
		ref = "HEAD"
	}
	_, child := vcs.SplitID(ref)
	out, err := b.run("ls-tree", "-r", "--name-only", child)
	if err != nil {
		return nil, vcs.WrapErr("Tree", id, err)
	}
	return splitLines(out), nil
}

// Diffstat computes change counters for id, preferring the
// prefetcher's cache when one is running.
func (b *Backend) Diffstat(id string) (vcs.Diffstat, error) {
	b.mu.Lock()
	p := b.prefetcher
	b.mu.Unlock()
	if p != nil && p.WillFetchDiffstat(id) {
		stat, ok := p.GetDiffstat(id)
		if ok {
			return stat, nil
		}
		return nil, vcs.WrapErr("Diffstat", id, fmt.Errorf("prefetch failed"))
	}
	return b.diffstatDirect(id)
}

func (b *Backend) diffstatDirect(id string) (vcs.Diffstat, error) {
	parent, child := vcs.SplitID(id)
	var out string
	var err error
	if parent == "" {
		out, err = b.run("diff-tree", "--no-commit-id", "--patch", "--root", child)
	} else {
		out, err = b.run("diff", "--patch", parent, child)
	}
	if err != nil {
		return nil, vcs.WrapErr("Diffstat", id, err)
	}
	return parseDiffstat(out), nil
}

// Revision returns full metadata plus diffstat for id, preferring the
// prefetcher's cache when one is running.
func (b *Backend) Revision(id string) (vcs.Revision, error) {
	b.mu.Lock()
	p := b.prefetcher
	b.mu.Unlock()

	var rec metaRecord
	var stat vcs.Diffstat
	var err error

	if p != nil && p.WillFetchMeta(id) {
		var ok bool
		rec, ok = p.GetMeta(id)
		if !ok {
			return vcs.Revision{}, vcs.WrapErr("Revision", id, fmt.Errorf("prefetch failed"))
		}
	} else {
		rec, err = b.metaDirect(id)
		if err != nil {
			return vcs.Revision{}, vcs.WrapErr("Revision", id, err)
		}
	}

	stat, err = b.Diffstat(id)
	if err != nil {
		return vcs.Revision{}, err
	}

	return vcs.Revision{ID: id, Date: rec.Date, Author: rec.Author, Message: rec.Message, Diffstat: stat}, nil
}

func (b *Backend) metaDirect(id string) (metaRecord, error) {
	_, child := vcs.SplitID(id)
	argv := []string{b.gitExe, "-C", b.repoPath, "log", "--no-walk", "--stdin",
		"--format=%x00%nauthor %an <%ae> %at %az%ncommitter %cn <%ce> %ct %cz%n%n%w(0,4,4)%B"}
	pipe, err := procpipe.Start(argv)
	if err != nil {
		return metaRecord{}, err
	}
	if _, err := pipe.Write([]byte(child + "\n")); err != nil {
		_ = pipe.Release()
		return metaRecord{}, err
	}
	if err := pipe.CloseWrite(); err != nil {
		_ = pipe.Release()
		return metaRecord{}, err
	}
	out, err := pipe.ReadAll()
	if relErr := pipe.Release(); err == nil {
		err = relErr
	}
	if err != nil {
		return metaRecord{}, err
	}
	blocks := splitHeaderBlocks(out)
	if len(blocks) == 0 {
		return metaRecord{}, fmt.Errorf("no header for %s", id)
	}
	return parseHeader(id, blocks[0])
}

// Iterator returns ids on branch, pairwise-rewritten per the iterator
// pairing rule, optionally windowed by unix time.
func (b *Backend) Iterator(branch string, start, end int64) ([]string, error) {
	ids, err := iterator(b.gitExe, b.repoPath, branch, start, end)
	if err != nil {
		return nil, vcs.WrapErr("Iterator", branch, err)
	}
	return ids, nil
}

// Prefetch lazily starts the Prefetcher on first use and submits ids
// to it.
func (b *Backend) Prefetch(ids []string) {
	b.mu.Lock()
	if b.prefetcher == nil {
		b.prefetcher = NewPrefetcher(b.gitExe, b.repoPath, b.opts, b.log)
	}
	p := b.prefetcher
	b.mu.Unlock()
	p.Prefetch(ids)
}

// Finalize stops and joins the prefetcher's worker pools, if started.
// Safe to call more than once.
func (b *Backend) Finalize() {
	b.mu.Lock()
	p := b.prefetcher
	b.prefetcher = nil
	b.mu.Unlock()
	if p == nil {
		return
	}
	p.Stop()
	p.Wait()
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
