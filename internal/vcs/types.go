// Package vcs defines the abstract contract that concrete
// version-control backends implement, and the data types that flow
// through the prefetch and cache layers.
package vcs

import "strings"

// Stat holds per-file change counters for one revision.
type Stat struct {
	LinesAdded   uint64
	BytesAdded   uint64
	LinesRemoved uint64
	BytesRemoved uint64
}

// IsZero reports whether s represents no change at all, which is
// forbidden as a Diffstat entry.
func (s Stat) IsZero() bool {
	return s.LinesAdded == 0 && s.LinesRemoved == 0 && s.BytesAdded == 0 && s.BytesRemoved == 0
}

// Diffstat maps file path to its change counters. Entries for
// unchanged files are never present.
type Diffstat map[string]Stat

// Prune removes any zero-valued entries, enforcing the Diffstat
// invariant after construction from a diff parser.
func (d Diffstat) Prune() {
	for path, s := range d {
		if s.IsZero() {
			delete(d, path)
		}
	}
}

// Revision is one commit's worth of metadata plus its diffstat. It is
// immutable after construction.
type Revision struct {
	ID       string
	Date     int64 // seconds since epoch plus the committer's ±HHMM offset read as a signed integer (+0200 adds 200)
	Author   string
	Message  string
	Diffstat Diffstat
}

// Tag names one revision.
type Tag struct {
	ID   string
	Name string
}

// SplitID splits a revision id into its parent and child components.
// A bare id ("HASH") has no parent and is returned as ("", HASH). A
// pair id ("PARENT:CHILD") splits on the first colon.
func SplitID(id string) (parent, child string) {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

// PairID joins a parent/child pair into wire form, or returns child
// unmodified if parent is empty (root revision).
func PairID(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + ":" + child
}

// PairIDs returns a copy of ids in which every element but the first
// becomes "predecessor:id" (a slice shorter than two is returned as
// is), matching the iterator pairing rule: each
// non-first revision is diffed against its immediate predecessor in
// the sequence.
func PairIDs(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	out := make([]string, len(ids))
	out[0] = ids[0]
	for i := 1; i < len(ids); i++ {
		out[i] = PairID(ids[i-1], ids[i])
	}
	return out
}
