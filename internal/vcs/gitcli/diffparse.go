package gitcli

import (
	"bufio"
	"strings"

	"github.com/pepperstats/pepperstats/internal/vcs"
)

// parseDiffstat implements §4.4.2: scan a unified-diff stream,
// recovering the target path from the +++/--- headers of each file
// block and accumulating per-line counters for + and - hunk lines.
func parseDiffstat(diffText string) vcs.Diffstat {
	out := vcs.Diffstat{}
	scanner := bufio.NewScanner(strings.NewReader(diffText))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var currentPath string
	var minusPath string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "--- "):
			minusPath = normalizeDiffPath(strings.TrimPrefix(line, "--- "))
			continue
		case strings.HasPrefix(line, "+++ "):
			currentPath = normalizeDiffPath(strings.TrimPrefix(line, "+++ "))
			if currentPath == "/dev/null" {
				currentPath = minusPath
			}
			continue
		case strings.HasPrefix(line, "@@"):
			continue
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		}
		if currentPath == "" {
			continue
		}
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			s := out[currentPath]
			s.LinesAdded++
			s.BytesAdded += uint64(len(line) - 1)
			out[currentPath] = s
		} else if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			s := out[currentPath]
			s.LinesRemoved++
			s.BytesRemoved += uint64(len(line) - 1)
			out[currentPath] = s
		}
	}
	out.Prune()
	return out
}

// normalizeDiffPath strips the a/ or b/ prefix git adds to unified
// diff paths.
func normalizeDiffPath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.Index(path, "\t"); i >= 0 {
		path = path[:i]
	}
	switch {
	case strings.HasPrefix(path, "a/"):
		return path[2:]
	case strings.HasPrefix(path, "b/"):
		return path[2:]
	default:
		return path
	}
}
