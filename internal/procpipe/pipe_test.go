package procpipe

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func shArgv(script string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C", script}
	}
	return []string{"/bin/sh", "-c", script}
}

func TestRunOneShot(t *testing.T) {
	out, err := Run(shArgv("echo hello"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", out)
}

func TestRunNonZeroExit(t *testing.T) {
	_, err := Run(shArgv("exit 3"))
	require.Error(t, err)
	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 3, pe.ExitCode)
}

func TestReadUntilSentinel(t *testing.T) {
	p, err := Start(shArgv(`printf 'line one\nline two\n\004\n'`))
	require.NoError(t, err)
	require.NoError(t, p.CloseWrite())

	out, err := p.ReadUntilSentinel()
	require.NoError(t, err)
	require.Equal(t, "line one\nline two\n", out)
	require.NoError(t, p.Release())
}

func TestLongLivedRoundTrip(t *testing.T) {
	p, err := Start(shArgv(`while read -r line; do echo "got:$line"; printf '\004\n'; done`))
	require.NoError(t, err)

	_, err = p.Write([]byte("first\n"))
	require.NoError(t, err)
	out, err := p.ReadUntilSentinel()
	require.NoError(t, err)
	require.Equal(t, "got:first\n", out)

	_, err = p.Write([]byte("second\n"))
	require.NoError(t, err)
	out, err = p.ReadUntilSentinel()
	require.NoError(t, err)
	require.Equal(t, "got:second\n", out)

	require.NoError(t, p.Release())
}
