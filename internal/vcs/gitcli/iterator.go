package gitcli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pepperstats/pepperstats/internal/procpipe"
	"github.com/pepperstats/pepperstats/internal/vcs"
)

// iterator runs `git rev-list --first-parent --reverse` to produce
// ids in ascending chronological order, optionally windowed by unix
// time, then rewrites all but the first id into "parent:child" pair
// form per the iterator pairing rule. Following the original tool's
// GitBackend::iterator, start bounds the window from above
// (--max-age) and end bounds it from below (--min-age): rev-list's
// "age" flags count backwards from now, so the older bound of the
// window is the max-age and the newer bound is the min-age.
func iterator(gitExe, repoPath, branch string, start, end int64) ([]string, error) {
	argv := []string{gitExe, "-C", repoPath, "rev-list", "--first-parent", "--reverse"}
	if start > 0 {
		argv = append(argv, "--max-age="+strconv.FormatInt(start, 10))
	}
	if end > 0 {
		argv = append(argv, "--min-age="+strconv.FormatInt(end, 10))
	}
	argv = append(argv, branch)

	out, err := procpipe.Run(argv)
	if err != nil {
		return nil, fmt.Errorf("rev-list: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}
	return vcs.PairIDs(ids), nil
}
