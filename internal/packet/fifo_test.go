package packet

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFIFOPushPopOrder(t *testing.T) {
	f := New()
	want := [][]byte{[]byte("alpha"), []byte("bravo"), []byte("charlie")}
	for _, p := range want {
		f.Push(p)
	}
	require.Equal(t, len(want), f.Size())

	buf := make([]byte, 64)
	for _, w := range want {
		n := f.Pop(buf, len(buf))
		require.Equal(t, string(w), string(buf[:n]))
	}
	require.Equal(t, 0, f.Size())
}

func TestFIFOHeadDropAtHardCap(t *testing.T) {
	f := New()
	for i := 0; i < 70; i++ {
		f.Push([]byte(fmt.Sprintf("p%03d", i)))
	}
	require.Equal(t, hardCapacity, f.Size())

	buf := make([]byte, 16)
	n := f.Pop(buf, len(buf))
	require.Equal(t, "p006", string(buf[:n])) // first 6 pushes were dropped
}

func TestFIFOPopAllIsPure(t *testing.T) {
	f := New()
	f.Push([]byte("ab"))
	f.Push([]byte("cde"))

	total := f.PopAll(nil, 0)
	require.Equal(t, 5, total)
	require.Equal(t, 2, f.Size(), "peek form must not mutate the queue")
}

func TestFIFOPopAllPrefixOnly(t *testing.T) {
	f := New()
	f.Push([]byte("ab"))
	f.Push([]byte("cde"))
	f.Push([]byte("f"))

	buf := make([]byte, 5)
	n := f.PopAll(buf, len(buf))
	require.Equal(t, 5, n)
	require.Equal(t, "abcde", string(buf[:n]))
	require.Equal(t, 1, f.Size(), "the unconsumed suffix stays queued")

	n2 := f.PopAll(buf, len(buf))
	require.Equal(t, 1, n2)
	require.Equal(t, "f", string(buf[:n2]))
	require.Equal(t, 0, f.Size())
}

func TestFIFOPopAllHeadTooBigDeliversNothing(t *testing.T) {
	f := New()
	f.Push([]byte("abcdef"))
	f.Push([]byte("g"))

	buf := make([]byte, 3)
	n := f.PopAll(buf, len(buf))
	require.Equal(t, 0, n)
	require.Equal(t, 2, f.Size())
}

func TestFIFOPeekSize(t *testing.T) {
	f := New()
	f.Push([]byte("hello"))
	require.Equal(t, 5, f.Pop(nil, 0))
	require.Equal(t, 1, f.Size(), "peek form must not remove the packet")
}

func TestFIFODrainMatchesGoldenSequence(t *testing.T) {
	f := New()
	pushed := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range pushed {
		f.Push(p)
	}

	var drained [][]byte
	buf := make([]byte, 64)
	for f.Size() > 0 {
		n := f.Pop(buf, len(buf))
		drained = append(drained, append([]byte(nil), buf[:n]...))
	}

	if diff := cmp.Diff(pushed, drained); diff != "" {
		t.Errorf("drained sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestFIFOPopTruncatesSilently(t *testing.T) {
	f := New()
	f.Push([]byte("hello world"))
	buf := make([]byte, 5)
	n := f.Pop(buf, len(buf))
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
	require.Equal(t, 0, f.Size())
}
