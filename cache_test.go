package shr_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	shr "github.com/paultag/go-shr"
)

// TestBufferedWriteCachesWhenRingFullThenFlushDelivers exercises the
// write-side cache: a message that doesn't fit in the ring is
// staged locally instead of failing the caller's Writev, is visible
// through Stat's cache counters, and a later explicit Flush delivers it
// once the ring has room.
func TestBufferedWriteCachesWhenRingFullThenFlushDelivers(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, 5, shr.FlagMaxMsgs, shr.WithMaxMessages(1)))

	w, err := shr.Open(path, shr.OpenWROnly|shr.OpenNonblock|shr.OpenBuffered)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("aaaaa"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = w.Write([]byte("bbbbb"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	st, err := w.Stat(false)
	require.NoError(t, err)
	require.EqualValues(t, 5, st.CacheBytes)
	require.Equal(t, 1, st.CacheMessages)

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	msgN, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "aaaaa", string(buf[:msgN]))

	flushed, err := w.Flush(true)
	require.NoError(t, err)
	require.Equal(t, 5, flushed)

	msgN, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "bbbbb", string(buf[:msgN]))
}

// TestNonblockingFlushDiscardsWhenRingStaysFull documents the other half
// of that contract: a non-waiting Flush on a ring with no room does not
// block, and reports ErrWouldBlock after discarding whatever it could not
// deliver, rather than holding staged bytes forever.
func TestNonblockingFlushDiscardsWhenRingStaysFull(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, 5, shr.FlagMaxMsgs, shr.WithMaxMessages(1)))

	w, err := shr.Open(path, shr.OpenWROnly|shr.OpenNonblock|shr.OpenBuffered)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("aaaaa"))
	require.NoError(t, err)
	_, err = w.Write([]byte("bbbbb"))
	require.NoError(t, err)

	flushed, err := w.Flush(false)
	require.True(t, errors.Is(err, shr.ErrWouldBlock))
	require.Equal(t, 0, flushed)

	st, err := w.Stat(false)
	require.NoError(t, err)
	require.EqualValues(t, 0, st.CacheBytes)
	require.Equal(t, 0, st.CacheMessages)

	r, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "aaaaa", string(buf[:n]))

	_, err = r.Read(buf)
	require.ErrorIs(t, err, shr.ErrWouldBlock)
}
