package gitnative

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/pepperstats/pepperstats/internal/vcs"
)

// statForChange resolves the effective path for a go-git Change and
// computes its line/byte counters by diffing old and new blob
// contents line-by-line with go-difflib's SequenceMatcher, rather
// than shelling out to `git diff` and reparsing unified-diff text.
func statForChange(change *object.Change) (string, vcs.Stat, error) {
	from, to, err := change.Files()
	if err != nil {
		return "", vcs.Stat{}, err
	}

	var path string
	var oldLines, newLines []string

	if from != nil {
		path = from.Name
		content, err := from.Contents()
		if err != nil {
			return path, vcs.Stat{}, err
		}
		oldLines = splitLinesKeepNL(content)
	}
	if to != nil {
		path = to.Name
		content, err := to.Contents()
		if err != nil {
			return path, vcs.Stat{}, err
		}
		newLines = splitLinesKeepNL(content)
	}

	matcher := difflib.NewMatcher(oldLines, newLines)
	var stat vcs.Stat
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'd': // delete: present in old, absent from new
			for i := op.I1; i < op.I2; i++ {
				stat.LinesRemoved++
				stat.BytesRemoved += lineBytes(oldLines[i])
			}
		case 'i': // insert: absent from old, present in new
			for j := op.J1; j < op.J2; j++ {
				stat.LinesAdded++
				stat.BytesAdded += lineBytes(newLines[j])
			}
		case 'r': // replace: counts as a removal plus an addition
			for i := op.I1; i < op.I2; i++ {
				stat.LinesRemoved++
				stat.BytesRemoved += lineBytes(oldLines[i])
			}
			for j := op.J1; j < op.J2; j++ {
				stat.LinesAdded++
				stat.BytesAdded += lineBytes(newLines[j])
			}
		}
	}
	return path, stat, nil
}

// lineBytes is the length of one line without its line ending, the
// same byte count gitcli's unified-diff parser records for a +/- line.
func lineBytes(line string) uint64 {
	return uint64(len(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")))
}

// splitLinesKeepNL splits into lines, keeping the trailing newline on
// each element, so a final line without a newline does not match the
// same text with one.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, "\n")
}
