package shr_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	shr "github.com/paultag/go-shr"
)

// TestFarmFanOutAndMissedCount exercises the farm broadcast
// path end to end: multiple readers independently observe the same
// sequence of messages, a reader that falls behind a drop sees its
// FarmStat missed-count advance by exactly the number of messages the
// drop policy reclaimed out from under it, and a reader opened after the
// drop picks up at the new eldest sequence rather than replaying what was
// already gone.
func TestFarmFanOutAndMissedCount(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ring")
	require.NoError(t, shr.Init(path, 32, shr.FlagFarm|shr.FlagMaxMsgs, shr.WithMaxMessages(2)))

	w, err := shr.Open(path, shr.OpenWROnly)
	require.NoError(t, err)
	defer w.Close()

	// A reader opened before any writes, but not read from until after
	// the eldest-advancing write below: it will have missed "aa".
	lagging, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer lagging.Close()

	_, err = w.Write([]byte("aa"))
	require.NoError(t, err)
	_, err = w.Write([]byte("bb"))
	require.NoError(t, err)

	// Two readers opened after the first two writes fan out the same
	// messages independently; neither consumes ring space.
	r1, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r1.Close()
	r2, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer r2.Close()

	buf := make([]byte, 16)
	for _, r := range []*shr.Handle{r1, r2} {
		n, err := r.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "aa", string(buf[:n]))
		n, err = r.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "bb", string(buf[:n]))
	}

	// The index is full (2 slots); this write forces the drop policy to
	// reclaim "aa" before it can proceed.
	_, err = w.Write([]byte("cc"))
	require.NoError(t, err)

	st, err := w.Stat(false)
	require.NoError(t, err)
	require.EqualValues(t, 1, st.MsgsDropped)

	// A reader opened after the drop starts at the new eldest ("bb"),
	// never re-observing the dropped "aa".
	fresh, err := shr.Open(path, shr.OpenRDOnly|shr.OpenNonblock)
	require.NoError(t, err)
	defer fresh.Close()

	n, err := fresh.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "bb", string(buf[:n]))
	n, err = fresh.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "cc", string(buf[:n]))

	// r1/r2 already consumed "aa" before it was dropped, so they observe
	// no gap; only the never-read lagging reader does.
	require.EqualValues(t, 0, r1.FarmStat(false))

	n, err = lagging.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "bb", string(buf[:n]))
	require.EqualValues(t, 1, lagging.FarmStat(true))
	// FarmStat(true) resets the counter.
	require.EqualValues(t, 0, lagging.FarmStat(false))
}
