package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetArgDone(t *testing.T) {
	q := New[string, int](0)
	q.Put("a", "b", "c")

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		arg, ok := q.GetArg()
		require.True(t, ok)
		seen[arg]++
		q.Done(arg, len(arg))
	}
	require.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)

	for _, k := range []string{"a", "b", "c"} {
		r, ok := q.GetResult(k)
		require.True(t, ok)
		require.Equal(t, len(k), r)
	}
}

// TestAtMostOnceDelivery covers invariant 2: for any key, across
// concurrent consumers, exactly one GetArg call returns it.
func TestAtMostOnceDelivery(t *testing.T) {
	q := New[int, struct{}](0)
	const n = 200
	args := make([]int, n)
	for i := range args {
		args[i] = i
	}
	q.Put(args...)

	var mu sync.Mutex
	counts := make(map[int]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				a, ok := q.GetArg()
				if !ok {
					return
				}
				mu.Lock()
				counts[a]++
				mu.Unlock()
				q.Done(a, struct{}{})
			}
		}()
	}
	// Drain results so the consumers above exit naturally once pending is empty.
	go func() {
		for _, a := range args {
			q.GetResult(a)
		}
		q.Stop()
	}()
	wg.Wait()

	require.Len(t, counts, n)
	for _, c := range counts {
		require.Equal(t, 1, c)
	}
}

// TestStopUnblocksPendingResults covers scenario S2: stopping the
// queue before any worker completes unblocks GetResult with false
// rather than hanging.
func TestStopUnblocksPendingResults(t *testing.T) {
	q := New[string, int](0)
	q.Put("x", "y")

	results := make(chan bool, 2)
	go func() {
		_, ok := q.GetResult("x")
		results <- ok
	}()
	go func() {
		_, ok := q.GetResult("y")
		results <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Stop()

	for i := 0; i < 2; i++ {
		select {
		case ok := <-results:
			require.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("GetResult did not unblock after Stop")
		}
	}
}

func TestFailRemaining(t *testing.T) {
	q := New[string, int](0)
	q.Put("x")
	_, _ = q.GetArg()
	q.FailRemaining()
	_, ok := q.GetResult("x")
	require.False(t, ok)
}

func TestHasArg(t *testing.T) {
	q := New[string, int](0)
	require.False(t, q.HasArg("x"))
	q.Put("x")
	require.True(t, q.HasArg("x"))
}

func TestResubmitAfterTerminal(t *testing.T) {
	q := New[string, int](0)
	q.Put("x")
	arg, _ := q.GetArg()
	q.Done(arg, 1)
	r, ok := q.GetResult("x")
	require.True(t, ok)
	require.Equal(t, 1, r)

	q.Put("x")
	arg, ok = q.GetArg()
	require.True(t, ok)
	require.Equal(t, "x", arg)
	q.Done(arg, 2)
	r, ok = q.GetResult("x")
	require.True(t, ok)
	require.Equal(t, 2, r)
}
