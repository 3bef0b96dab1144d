package shr_test

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	shr "github.com/paultag/go-shr"
)

func newRing(t *testing.T, dataBytes uint64, flags uint32, opts ...shr.InitOption) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, dataBytes, flags, opts...))
	return path
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	path := newRing(t, 4096, 0)

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 64)
	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestReadEmptyNonblockingReturnsWouldBlock(t *testing.T) {
	t.Parallel()
	path := newRing(t, 4096, 0)

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	_, err = r.Read(buf)
	require.ErrorIs(t, err, shr.ErrWouldBlock)
}

func TestMessageTooBigForCallerBuffer(t *testing.T) {
	t.Parallel()
	path := newRing(t, 4096, 0)

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()
	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = r.Read(buf)
	require.ErrorIs(t, err, shr.ErrMessageTooBig)
}

func TestNonblockingWriterBlockedOnSlotsReturnsWouldBlock(t *testing.T) {
	t.Parallel()
	path := newRing(t, 64, shr.FlagMaxMsgs, shr.WithMaxMessages(2))

	w, err := shr.Open(path, shr.OpenWROnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("ab"))
	require.NoError(t, err)
	_, err = w.Write([]byte("cd"))
	require.NoError(t, err)

	_, err = w.Write([]byte("ef"))
	require.ErrorIs(t, err, shr.ErrWouldBlock)
}

func TestDropModeReclaimsEldestMessage(t *testing.T) {
	t.Parallel()
	path := newRing(t, 8, shr.FlagDrop|shr.FlagMaxMsgs, shr.WithMaxMessages(2))

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()

	for _, m := range []string{"ab", "cd", "ef"} {
		_, err := w.Write([]byte(m))
		require.NoError(t, err)
	}

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "cd", string(buf[:n]))

	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ef", string(buf[:n]))

	st, err := r.Stat(false)
	require.NoError(t, err)
	require.EqualValues(t, 1, st.MsgsDropped)
	require.EqualValues(t, 2, st.BytesDropped)
}

// TestDropModeReclaimsEldestMessageAfterInterleavedRead interleaves a read
// before a non-farm drop ring reaches capacity. The read retires the
// message it consumes (r/u/m and e/mp/q together), so the later reclaim
// evicts the true FIFO-oldest unread message ("b") rather than an index
// slot left over from a message that was already read.
func TestDropModeReclaimsEldestMessageAfterInterleavedRead(t *testing.T) {
	t.Parallel()
	path := newRing(t, 2, shr.FlagDrop|shr.FlagMaxMsgs, shr.WithMaxMessages(2))

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	_, err = w.Write([]byte("a"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "a", string(buf[:n]))

	for _, m := range []string{"b", "c", "d"} {
		_, err := w.Write([]byte(m))
		require.NoError(t, err)
	}

	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "c", string(buf[:n]))

	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "d", string(buf[:n]))

	st, err := r.Stat(false)
	require.NoError(t, err)
	require.EqualValues(t, 1, st.MsgsDropped)
}

func TestWrapAroundPreservesByteOrder(t *testing.T) {
	t.Parallel()
	path := newRing(t, 8, shr.FlagMaxMsgs, shr.WithMaxMessages(8))

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()
	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	for i := 0; i < 6; i++ {
		msg := []byte{byte('a' + i), byte('a' + i)}
		_, err := w.Write(msg)
		require.NoError(t, err)
		n, err := r.Read(buf)
		require.NoError(t, err)
		require.Equal(t, string(msg), string(buf[:n]))
	}
}

func TestInitKeepExistingLeavesFileUntouched(t *testing.T) {
	t.Parallel()
	path := newRing(t, 64, 0)

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, shr.Init(path, 64, shr.FlagKeepExisting))

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestInitRejectsZeroLengthData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	err := shr.Init(path, 0, 0)
	require.ErrorIs(t, err, shr.ErrInvalid)
}

func TestWriteReadOnlyHandleRejected(t *testing.T) {
	t.Parallel()
	path := newRing(t, 64, 0)

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Write([]byte("nope"))
	require.ErrorIs(t, err, shr.ErrReadOnly)
}

func TestReadWriteOnlyHandleRejected(t *testing.T) {
	t.Parallel()
	path := newRing(t, 64, 0)

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Read(make([]byte, 16))
	require.ErrorIs(t, err, shr.ErrWriteOnly)
}

func TestResetEmptiesRing(t *testing.T) {
	t.Parallel()
	path := newRing(t, 64, 0)

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)

	require.NoError(t, w.Reset())

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read(make([]byte, 16))
	require.ErrorIs(t, err, shr.ErrWouldBlock)
}

// TestStatResetZerosOnlyCumulativeCounters checks that Stat(true) hands back
// the pre-reset snapshot and that the stats period it starts zeros the
// cumulative counters (bytes/msgs written, read, dropped) while leaving the
// ring's instantaneous state (unread bytes/msgs, capacities, flags, cache)
// untouched. All Stat calls go through the same handle so per-handle cache
// state can't confound the comparison. cmp.Diff pinpoints exactly which
// field regressed instead of a single require.Equal's all-or-nothing report.
func TestStatResetZerosOnlyCumulativeCounters(t *testing.T) {
	t.Parallel()
	path := newRing(t, 64, 0)

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()
	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = w.Write([]byte("world!"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	before, err := r.Stat(false)
	require.NoError(t, err)

	want := before
	want.BytesWritten, want.MsgsWritten = 11, 2
	want.BytesRead, want.MsgsRead = 5, 1
	want.MsgsDropped, want.BytesDropped = 0, 0
	if diff := cmp.Diff(want, before); diff != "" {
		t.Fatalf("stat before reset (-want +got):\n%s", diff)
	}

	resetSnapshot, err := r.Stat(true)
	require.NoError(t, err)
	if diff := cmp.Diff(before, resetSnapshot); diff != "" {
		t.Fatalf("Stat(true) should return the pre-reset snapshot (-before +resetSnapshot):\n%s", diff)
	}

	after, err := r.Stat(false)
	require.NoError(t, err)

	wantAfter := after
	wantAfter.BytesWritten, wantAfter.MsgsWritten = 0, 0
	wantAfter.BytesRead, wantAfter.MsgsRead = 0, 0
	wantAfter.MsgsDropped, wantAfter.BytesDropped = 0, 0
	wantAfter.RingBytes, wantAfter.UnreadBytes = before.RingBytes, before.UnreadBytes
	wantAfter.UnreadMsgs, wantAfter.IndexCapacity = before.UnreadMsgs, before.IndexCapacity
	wantAfter.CacheBytes, wantAfter.CacheMessages = before.CacheBytes, before.CacheMessages
	wantAfter.Flags = before.Flags
	if diff := cmp.Diff(wantAfter, after); diff != "" {
		t.Fatalf("stat after reset (-want +got):\n%s", diff)
	}
}
