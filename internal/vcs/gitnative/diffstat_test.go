package gitnative

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitLinesKeepNL(t *testing.T) {
	require.Equal(t, []string{"a\n", "b\n", "c"}, splitLinesKeepNL("a\nb\nc"))
	require.Nil(t, splitLinesKeepNL(""))
}
