package gitcli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseHeaderScenario covers §8 scenario S3.
func TestParseHeaderScenario(t *testing.T) {
	block := "tree abc\n" +
		"parent def\n" +
		"author Alice Smith <alice@x> 1000000000 +0200\n" +
		"committer Alice Smith <alice@x> 1000000000 +0200\n" +
		"\n" +
		"    first line\n" +
		"    second line\n"

	rec, err := parseHeader("deadbeef", block)
	require.NoError(t, err)
	require.Equal(t, "Alice Smith", rec.Author)
	require.Equal(t, int64(1000000200), rec.Date)
	require.Equal(t, "first line\nsecond line", rec.Message)
}

func TestParseHeaderNegativeOffset(t *testing.T) {
	block := "author Bob <bob@x> 500 -0130\n" +
		"committer Bob <bob@x> 500 -0130\n\n    msg\n"
	rec, err := parseHeader("id", block)
	require.NoError(t, err)
	require.Equal(t, int64(500-130), rec.Date)
}

func TestParseHeaderMissingAuthor(t *testing.T) {
	_, err := parseHeader("id", "committer Bob <bob@x> 500 +0000\n\nmsg\n")
	require.Error(t, err)
}

func TestSplitHeaderBlocks(t *testing.T) {
	out := "\x00\nauthor A <a@x> 1 +0000\ncommitter A <a@x> 1 +0000\n\n    m1\n" +
		"\x00\nauthor B <b@x> 2 +0000\ncommitter B <b@x> 2 +0000\n\n    m2\n"
	blocks := splitHeaderBlocks(out)
	require.Len(t, blocks, 2)
}

func TestParseDiffstat(t *testing.T) {
	diff := `diff --git a/foo.txt b/foo.txt
index aaa..bbb 100644
--- a/foo.txt
+++ b/foo.txt
@@ -1,2 +1,3 @@
 unchanged
-removed line
+added line
+another added line
`
	stat := parseDiffstat(diff)
	require.Len(t, stat, 1)
	s := stat["foo.txt"]
	require.Equal(t, uint64(2), s.LinesAdded)
	require.Equal(t, uint64(1), s.LinesRemoved)
}

func TestParseDiffstatNewFile(t *testing.T) {
	diff := `diff --git a/new.txt b/new.txt
new file mode 100644
index 0000000..aaa
--- /dev/null
+++ b/new.txt
@@ -0,0 +1,2 @@
+line one
+line two
`
	stat := parseDiffstat(diff)
	require.Len(t, stat, 1)
	s := stat["new.txt"]
	require.Equal(t, uint64(2), s.LinesAdded)
}

func TestNormalizeDiffPath(t *testing.T) {
	require.Equal(t, "foo.txt", normalizeDiffPath("a/foo.txt"))
	require.Equal(t, "foo.txt", normalizeDiffPath("b/foo.txt"))
	require.Equal(t, "/dev/null", normalizeDiffPath("/dev/null"))
}
