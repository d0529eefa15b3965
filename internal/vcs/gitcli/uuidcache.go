package gitcli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// sidecarFile is the per-repository UUID cache the original tool
// keeps next to the repository metadata: plain-text lines of
// "branch head root", read to avoid recomputing a branch's root
// commit (an expensive rev-list walk) on every run.
const sidecarFile = "pepper.cache"

type sidecarEntry struct {
	Branch string
	Head   string
	Root   string
}

func sidecarPath(gitDir string) string {
	return filepath.Join(gitDir, sidecarFile)
}

func readSidecar(gitDir, branch string) (sidecarEntry, bool) {
	f, err := os.Open(sidecarPath(gitDir))
	if err != nil {
		return sidecarEntry{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		if fields[0] == branch {
			return sidecarEntry{Branch: fields[0], Head: fields[1], Root: fields[2]}, true
		}
	}
	return sidecarEntry{}, false
}

// writeSidecar atomically replaces the cached entry for branch,
// preserving entries for other branches. Writes to a uniquely named
// temp file before renaming, so concurrent runs against the same
// repository never observe a partially written file.
func writeSidecar(gitDir string, entry sidecarEntry) error {
	existing := map[string]sidecarEntry{}
	if f, err := os.Open(sidecarPath(gitDir)); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) == 3 {
				existing[fields[0]] = sidecarEntry{Branch: fields[0], Head: fields[1], Root: fields[2]}
			}
		}
		f.Close()
	}
	existing[entry.Branch] = entry

	tmpPath := filepath.Join(gitDir, sidecarFile+".tmp."+uuid.NewString())
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create sidecar temp file: %w", err)
	}
	for _, e := range existing {
		if _, err := fmt.Fprintf(tmp, "%s %s %s\n", e.Branch, e.Head, e.Root); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write sidecar temp file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close sidecar temp file: %w", err)
	}
	if err := os.Rename(tmpPath, sidecarPath(gitDir)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename sidecar temp file: %w", err)
	}
	return nil
}
