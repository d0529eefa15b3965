// Package gitnative is a second Backend implementation, demonstrating
// that the engine's Backend abstraction is genuinely polymorphic: it
// reads repository objects in-process via go-git instead of shelling
// out to git, and computes diffstats with a line-oriented diff
// library rather than parsing a subprocess's unified-diff output.
package gitnative

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/pepperstats/pepperstats/internal/vcs"
)

// Backend satisfies vcs.Backend by reading a repository's object
// database directly, with no subprocess and no prefetch pipeline.
// It is unsuitable for history-rewrite-heavy repositories since it
// keeps no UUID/root-commit cache across runs.
type Backend struct {
	repo *git.Repository
}

var _ vcs.Backend = (*Backend)(nil)

// Open opens the repository at path using go-git.
func Open(path string) (*Backend, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("gitnative: open repository: %w", err)
	}
	return &Backend{repo: repo}, nil
}

// UUID returns the root commit id of the repository's default branch.
func (b *Backend) UUID() (string, error) {
	branch, err := b.MainBranch()
	if err != nil {
		return "", vcs.WrapErr("UUID", "", err)
	}
	head, err := b.Head(branch)
	if err != nil {
		return "", vcs.WrapErr("UUID", "", err)
	}
	commit, err := b.repo.CommitObject(plumbing.NewHash(head))
	if err != nil {
		return "", vcs.WrapErr("UUID", head, err)
	}
	for {
		if commit.NumParents() == 0 {
			return commit.Hash.String(), nil
		}
		parent, err := commit.Parent(0)
		if err != nil {
			return "", vcs.WrapErr("UUID", commit.Hash.String(), err)
		}
		commit = parent
	}
}

// Head returns the newest revision id on branch (empty means HEAD).
func (b *Backend) Head(branch string) (string, error) {
	if branch == "" {
		ref, err := b.repo.Head()
		if err != nil {
			return "", vcs.WrapErr("Head", "", err)
		}
		return ref.Hash().String(), nil
	}
	ref, err := b.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return "", vcs.WrapErr("Head", branch, err)
	}
	return ref.Hash().String(), nil
}

// MainBranch returns the branch HEAD points to.
func (b *Backend) MainBranch() (string, error) {
	ref, err := b.repo.Head()
	if err != nil {
		return "", vcs.WrapErr("MainBranch", "", err)
	}
	return ref.Name().Short(), nil
}

// Branches lists all local branch names.
func (b *Backend) Branches() ([]string, error) {
	iter, err := b.repo.Branches()
	if err != nil {
		return nil, vcs.WrapErr("Branches", "", err)
	}
	var out []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, vcs.WrapErr("Branches", "", err)
	}
	sort.Strings(out)
	return out, nil
}

// Tags lists all tags.
func (b *Backend) Tags() ([]vcs.Tag, error) {
	iter, err := b.repo.Tags()
	if err != nil {
		return nil, vcs.WrapErr("Tags", "", err)
	}
	var out []vcs.Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, vcs.Tag{ID: ref.Hash().String(), Name: ref.Name().Short()})
		return nil
	})
	if err != nil {
		return nil, vcs.WrapErr("Tags", "", err)
	}
	return out, nil
}

// Tree lists paths present at id, or HEAD if id is empty.
func (b *Backend) Tree(id string) ([]string, error) {
	ref := id
	if ref == "" {
		head, err := b.Head("")
		if err != nil {
			return nil, err
		}
		ref = head
	}
	_, child := vcs.SplitID(ref)
	commit, err := b.repo.CommitObject(plumbing.NewHash(child))
	if err != nil {
		return nil, vcs.WrapErr("Tree", id, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, vcs.WrapErr("Tree", id, err)
	}
	var out []string
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		if !entry.Mode.IsRegular() {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Diffstat computes per-file change counters for id using go-git's
// tree diff plus go-difflib's line-oriented matcher, rather than
// shelling out to `git diff`.
func (b *Backend) Diffstat(id string) (vcs.Diffstat, error) {
	parentHash, childHash := vcs.SplitID(id)
	child, err := b.repo.CommitObject(plumbing.NewHash(childHash))
	if err != nil {
		return nil, vcs.WrapErr("Diffstat", id, err)
	}
	childTree, err := child.Tree()
	if err != nil {
		return nil, vcs.WrapErr("Diffstat", id, err)
	}

	var parentTree *object.Tree
	if parentHash != "" {
		parent, err := b.repo.CommitObject(plumbing.NewHash(parentHash))
		if err != nil {
			return nil, vcs.WrapErr("Diffstat", id, err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, vcs.WrapErr("Diffstat", id, err)
		}
	}

	changes, err := object.DiffTree(parentTree, childTree)
	if err != nil {
		return nil, vcs.WrapErr("Diffstat", id, err)
	}

	out := vcs.Diffstat{}
	for _, change := range changes {
		path, stat, err := statForChange(change)
		if err != nil {
			return nil, vcs.WrapErr("Diffstat", id, err)
		}
		out[path] = stat
	}
	out.Prune()
	return out, nil
}

// Revision returns full metadata plus diffstat for id.
func (b *Backend) Revision(id string) (vcs.Revision, error) {
	_, childHash := vcs.SplitID(id)
	commit, err := b.repo.CommitObject(plumbing.NewHash(childHash))
	if err != nil {
		return vcs.Revision{}, vcs.WrapErr("Revision", id, err)
	}
	stat, err := b.Diffstat(id)
	if err != nil {
		return vcs.Revision{}, err
	}
	// Same date rule as the gitcli backend: the committer's UTC offset
	// is added as its ±HHMM digits read as one signed integer.
	_, offset := commit.Committer.When.Zone()
	sign := int64(1)
	if offset < 0 {
		sign, offset = -1, -offset
	}
	tz := sign * int64(offset/3600*100+offset%3600/60)
	date := commit.Committer.When.UTC().Unix() + tz
	return vcs.Revision{
		ID:       id,
		Date:     date,
		Author:   commit.Author.Name,
		Message:  commit.Message,
		Diffstat: stat,
	}, nil
}

// Iterator returns commit ids on branch in first-parent, ascending
// order, pairwise-rewritten per the iterator pairing rule.
func (b *Backend) Iterator(branch string, start, end int64) ([]string, error) {
	head, err := b.Head(branch)
	if err != nil {
		return nil, err
	}
	commit, err := b.repo.CommitObject(plumbing.NewHash(head))
	if err != nil {
		return nil, vcs.WrapErr("Iterator", branch, err)
	}

	var chain []*object.Commit
	for {
		chain = append(chain, commit)
		if commit.NumParents() == 0 {
			break
		}
		parent, err := commit.Parent(0)
		if err != nil {
			break
		}
		commit = parent
	}
	// chain is newest-first; reverse to ascending chronological order.
	ids := make([]string, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		when := c.Committer.When.Unix()
		if start > 0 && when < start {
			continue
		}
		if end > 0 && when > end {
			continue
		}
		ids = append(ids, c.Hash.String())
	}
	return vcs.PairIDs(ids), nil
}

// Prefetch is a no-op: gitnative reads objects in-process, so there is
// nothing to schedule ahead of demand.
func (b *Backend) Prefetch(ids []string) {}

// Finalize is a no-op for the same reason.
func (b *Backend) Finalize() {}
