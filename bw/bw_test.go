package bw_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/paultag/go-shr/bw"
)

func TestWakeUnblocksWaiter(t *testing.T) {
	t.Parallel()

	rec := &bw.Record{}
	waiter, err := bw.Open(rec, bw.ModeWait, nil)
	require.NoError(t, err)
	defer waiter.Close()

	waker, err := bw.Open(rec, bw.ModeWake, nil)
	require.NoError(t, err)
	defer waker.Close()

	done := make(chan error, 1)
	go func() {
		done <- waiter.Wait()
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, waker.Wake())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Wake")
	}
}

func TestCloseFreesWaiterSlot(t *testing.T) {
	t.Parallel()

	rec := &bw.Record{}
	waiter, err := bw.Open(rec, bw.ModeWait, nil)
	require.NoError(t, err)

	occupied := false
	for _, s := range rec.Slots {
		if s.PID != 0 {
			occupied = true
		}
	}
	require.True(t, occupied, "expected one occupied slot after Open")

	waiter.Close()

	for _, s := range rec.Slots {
		require.Zero(t, s.PID, "slot should be cleared after Close")
	}
}

func TestForceReadyMakesListenerReadable(t *testing.T) {
	t.Parallel()

	rec := &bw.Record{}
	waiter, err := bw.Open(rec, bw.ModeWait, nil)
	require.NoError(t, err)
	defer waiter.Close()

	readable := func() bool {
		fds := []unix.PollFd{{Fd: int32(waiter.Ready()), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		require.NoError(t, err)
		return n > 0 && fds[0].Revents&unix.POLLIN != 0
	}

	require.NoError(t, waiter.Force(true))
	require.True(t, readable(), "listener should be readable after Force(true)")
	require.NoError(t, waiter.Force(false))
	require.False(t, readable(), "listener should be drained after Force(false)")
}

func TestMaxWaitSlotsExhausted(t *testing.T) {
	t.Parallel()

	rec := &bw.Record{}
	var waiters []*bw.Handle
	defer func() {
		for _, w := range waiters {
			w.Close()
		}
	}()

	for i := 0; i < bw.MaxWait; i++ {
		w, err := bw.Open(rec, bw.ModeWait, nil)
		require.NoError(t, err)
		waiters = append(waiters, w)
	}

	_, err := bw.Open(rec, bw.ModeWait, nil)
	require.Error(t, err)
}

func TestReadyReturnsListenerFD(t *testing.T) {
	t.Parallel()

	rec := &bw.Record{}
	waiter, err := bw.Open(rec, bw.ModeWait, nil)
	require.NoError(t, err)
	defer waiter.Close()

	fd := waiter.Ready()
	require.GreaterOrEqual(t, fd, 0)

	var stat unix.Stat_t
	require.NoError(t, unix.Fstat(fd, &stat))
}
