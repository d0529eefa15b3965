package gitcli

import (
	"fmt"
	"strconv"
	"strings"
)

// metaRecord is the parsed form of one revision header block as
// emitted by `git log --header` style output.
type metaRecord struct {
	Date    int64
	Author  string
	Message string
}

// parseHeaderErr reports a malformed metadata header for one
// revision; the caller marks that key failed and continues.
type parseHeaderErr struct {
	Revision string
	Reason   string
}

func (e *parseHeaderErr) Error() string {
	return fmt.Sprintf("gitcli: parse header for %s: %s", e.Revision, e.Reason)
}

// parseHeader implements the §4.4.1 header grammar: locate the author
// line, locate the following committer line to recover the date, then
// collect the indented message body.
func parseHeader(revision, block string) (metaRecord, error) {
	lines := strings.Split(block, "\n")

	authorIdx := -1
	var author string
	for i, line := range lines {
		if strings.HasPrefix(line, "author ") {
			rest := strings.TrimPrefix(line, "author ")
			lastLT := strings.LastIndex(rest, "<")
			if lastLT < 0 {
				return metaRecord{}, &parseHeaderErr{revision, "no '<' in author line"}
			}
			author = strings.TrimSpace(rest[:lastLT])
			authorIdx = i
			break
		}
	}
	if authorIdx < 0 {
		return metaRecord{}, &parseHeaderErr{revision, "no author line"}
	}

	var date int64
	committerFound := false
	for i := authorIdx + 1; i < len(lines); i++ {
		if !strings.HasPrefix(lines[i], "committer ") {
			continue
		}
		fields := strings.Fields(lines[i])
		if len(fields) < 2 {
			return metaRecord{}, &parseHeaderErr{revision, "committer line too short"}
		}
		tzTok := fields[len(fields)-1]
		timeTok := fields[len(fields)-2]
		committerTime, err := strconv.ParseInt(timeTok, 10, 64)
		if err != nil {
			return metaRecord{}, &parseHeaderErr{revision, "bad committer time: " + err.Error()}
		}
		tzOffset, err := parseTZOffset(tzTok)
		if err != nil {
			return metaRecord{}, &parseHeaderErr{revision, "bad committer tz: " + err.Error()}
		}
		date = committerTime + tzOffset
		committerFound = true
		authorIdx = i
		break
	}
	if !committerFound {
		return metaRecord{}, &parseHeaderErr{revision, "no committer line"}
	}

	msgStart := authorIdx + 1
	for msgStart < len(lines) && strings.TrimSpace(lines[msgStart]) != "" {
		msgStart++
	}
	msgStart++ // skip the blank separator line

	var msgLines []string
	for i := msgStart; i < len(lines); i++ {
		l := lines[i]
		if strings.TrimSpace(l) == "" {
			continue
		}
		if len(l) >= 4 {
			l = l[4:]
		} else {
			l = strings.TrimLeft(l, " \t")
		}
		msgLines = append(msgLines, l)
	}

	return metaRecord{
		Date:    date,
		Author:  author,
		Message: strings.Join(msgLines, "\n"),
	}, nil
}

// parseTZOffset parses the raw, signed tz token from a committer line
// as a single base-10 integer, matching the "committer_time +
// tz_offset" date rule in §4.4.1 (ported from the original tool's
// str2int-on-the-whole-token behaviour, not an HH:MM-to-seconds
// conversion). This preserves the original tool's non-UTC date
// semantics (documented as an accepted open question) rather than
// normalising to a true UTC instant.
func parseTZOffset(tok string) (int64, error) {
	if len(tok) < 2 || (tok[0] != '+' && tok[0] != '-') {
		return 0, fmt.Errorf("expected a signed integer, got %q", tok)
	}
	sign := int64(1)
	if tok[0] == '-' {
		sign = -1
	}
	v, err := strconv.ParseInt(tok[1:], 10, 64)
	if err != nil {
		return 0, err
	}
	return sign * v, nil
}

// splitHeaderBlocks splits the metadata worker's batched output on
// the NUL-prefixed-line record separator (one header per input id).
func splitHeaderBlocks(output string) []string {
	parts := strings.Split(output, "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimPrefix(p, "\n")
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
