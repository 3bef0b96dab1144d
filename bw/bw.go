// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package bw implements the cross-process block/wake notification channel
// the shr ring uses to suspend blocking readers and writers. It is the Go
// equivalent of a condition variable that can live in shared memory: OS
// handles (sockets, pids) can't be pickled into an mmap region, so instead
// each waiter binds an abstract-namespace SOCK_DGRAM socket and publishes
// its name and pid into a Record embedded in the shared header. Wakers read
// that record, connect a socket to every live waiter, and send a one-byte
// datagram to make the waiter's listener socket readable.
//
// A Record is a fixed-size, pointer-free struct safe to overlay on shared
// memory mapped into unrelated processes. A Handle is the per-process,
// per-direction object built on top of one: it owns real OS sockets and
// must never be shared between processes.
package bw

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// NameLen is the length, in bytes, of the short identifier stored for a
// waiter's abstract-namespace socket.
const NameLen = 8

// MaxWait is the number of wait slots a Record can hold.
const MaxWait = 64

// slot is one occupant of a Record: the registering process's pid and the
// short name of its abstract-namespace socket. A pid of 0 marks a free
// slot.
type slot struct {
	PID  int32
	_pad int32
	Name [NameLen]byte
}

// Record is the fixed-size, pointer-free coordination block embedded twice
// in the ring header, once per wake direction. It is read and written only
// while the caller holds whatever lock protects the memory it's embedded
// in (the ring's file-range lock); Record itself does no locking.
type Record struct {
	Seqno int32
	_pad  int32
	Slots [MaxWait]slot
}

// Mode selects which side of the channel Open creates.
type Mode int

const (
	// ModeWait registers a new listener slot; the returned Handle is used
	// to block until woken.
	ModeWait Mode = iota
	// ModeWake scans the record for live slots and opens sockets to each;
	// the returned Handle is used to wake them.
	ModeWake
)

// Handle is a single process's end of one direction of the block/wake
// channel. It is not safe for concurrent use from multiple goroutines
// without external synchronization, matching the "CALL WITH HANDLE UNDER
// LOCK" discipline of the underlying record.
type Handle struct {
	mode Mode
	log  *zap.SugaredLogger

	rec *Record // pointer into shared memory; caller holds the lock

	// wait-side state
	slotIdx  int
	listener *os.File // abstract-namespace SOCK_DGRAM, our name
	self     *os.File // connected back to listener, used for Force
	name     [NameLen]byte

	// wake-side state
	seqno int32
	peers map[int]*peer // slot index -> connected socket

	extra []int // ancillary fds registered via Ctl(POLLFD, fd)

	mu sync.Mutex
}

type peer struct {
	slot int
	fd   *os.File
	name [NameLen]byte
	pid  int32
}

// Open creates a Handle bound to rec. The caller MUST hold the lock
// protecting rec's memory for the duration of Open.
func Open(rec *Record, mode Mode, log *zap.SugaredLogger) (*Handle, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &Handle{mode: mode, log: log, rec: rec, peers: map[int]*peer{}}
	pruneRecord(rec, log)

	switch mode {
	case ModeWait:
		if err := h.openWaiter(); err != nil {
			return nil, err
		}
	case ModeWake:
		h.syncWaker()
	default:
		return nil, fmt.Errorf("bw: invalid mode %d", mode)
	}
	return h, nil
}

// openWaiter finds a free slot, creates an abstract-namespace listener
// socket, registers it in the shared record, and connects a self-socket
// used later by Force.
func (h *Handle) openWaiter() error {
	idx := -1
	for i := range h.rec.Slots {
		if h.rec.Slots[i].PID == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("bw: no free wait slot (max %d)", MaxWait)
	}

	listener, name, err := bindAbstract()
	if err != nil {
		return fmt.Errorf("bw: bind abstract socket: %w", err)
	}
	self, err := dialAbstract(name)
	if err != nil {
		listener.Close()
		return fmt.Errorf("bw: connect self socket: %w", err)
	}

	h.slotIdx = idx
	h.listener = listener
	h.self = self
	h.name = name

	h.rec.Slots[idx].PID = int32(os.Getpid())
	h.rec.Slots[idx].Name = name
	h.rec.Seqno++
	return nil
}

// syncWaker re-reads the shared record and brings the local peer socket
// set in line with it: closes sockets for slots that became empty or
// changed identity, opens sockets to newly occupied slots, and updates the
// cached sequence number. Any socket closed here because its slot died
// also bumps Seqno before the caller's next wake-send loop runs, so a dead
// peer is never retried twice in the same cycle.
func (h *Handle) syncWaker() {
	seen := map[int]bool{}
	for i := range h.rec.Slots[:] {
		s := &h.rec.Slots[i]
		if s.PID == 0 {
			continue
		}
		seen[i] = true
		if p, ok := h.peers[i]; ok {
			if p.pid == s.PID && p.name == s.Name {
				continue
			}
			p.fd.Close()
			delete(h.peers, i)
		}
		fd, err := dialAbstract(s.Name)
		if err != nil {
			// peer vanished between the prune and our dial; clear it and
			// bump the sequence so we don't retry it this cycle.
			s.PID = 0
			s.Name = [NameLen]byte{}
			h.rec.Seqno++
			continue
		}
		h.peers[i] = &peer{slot: i, fd: fd, name: s.Name, pid: s.PID}
	}
	for i, p := range h.peers {
		if !seen[i] {
			p.fd.Close()
			delete(h.peers, i)
		}
	}
	h.seqno = h.rec.Seqno
}

// Wake re-syncs against the shared record if its sequence has moved, then
// sends a one-byte datagram to every currently known peer. A send that
// fails for a reason other than "would block" indicates the peer has
// vanished; that peer's slot is cleared in the shared record and removed
// locally. The caller must hold the lock.
func (h *Handle) Wake() error {
	if h.mode != ModeWake {
		return fmt.Errorf("bw: Wake called on non-wake handle")
	}
	if h.rec.Seqno != h.seqno {
		h.syncWaker()
	}
	for i, p := range h.peers {
		_, err := p.fd.Write([]byte{0})
		if err == nil {
			continue
		}
		if isWouldBlock(err) {
			continue
		}
		h.log.Debugw("bw: peer unreachable, reclaiming slot", "slot", i, "err", err)
		p.fd.Close()
		delete(h.peers, i)
		if h.rec.Slots[i].PID == p.pid && h.rec.Slots[i].Name == p.name {
			h.rec.Slots[i].PID = 0
			h.rec.Slots[i].Name = [NameLen]byte{}
			h.rec.Seqno++
			h.seqno = h.rec.Seqno
		}
	}
	return nil // peer death is recovered locally; never surfaced to the caller
}

// Close releases the Handle's OS resources and, for a waiter, clears its
// slot in the shared record. The caller must hold the lock.
func (h *Handle) Close() {
	switch h.mode {
	case ModeWait:
		if h.listener != nil {
			h.listener.Close()
		}
		if h.self != nil {
			h.self.Close()
		}
		if h.rec.Slots[h.slotIdx].PID == int32(os.Getpid()) {
			h.rec.Slots[h.slotIdx].PID = 0
			h.rec.Slots[h.slotIdx].Name = [NameLen]byte{}
			h.rec.Seqno++
		}
	case ModeWake:
		for _, p := range h.peers {
			p.fd.Close()
		}
		h.peers = nil
	}
}

// Force reconciles the listener's readable state with the logical
// ready/not-ready predicate the ring engine recomputes after every
// operation. When ready is true and the listener has
// nothing pending, a byte is pushed through the self-socket to make it
// readable; when ready is false, the listener is drained. Only valid on a
// ModeWait Handle.
func (h *Handle) Force(ready bool) error {
	if h.mode != ModeWait {
		return fmt.Errorf("bw: Force called on non-wait handle")
	}
	if ready {
		if !h.ready() {
			_, err := h.self.Write([]byte{0})
			return err
		}
		return nil
	}
	return h.drain()
}

// ready reports whether the listener currently has a pending datagram,
// without consuming it.
func (h *Handle) ready() bool {
	fds := []unix.PollFd{{Fd: int32(h.listener.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	return err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
}

// drain performs a batched non-blocking receive until the listener has no
// more pending datagrams.
func (h *Handle) drain() error {
	buf := make([]byte, 1)
	for {
		n, _, err := unix.Recvfrom(int(h.listener.Fd()), buf, unix.MSG_DONTWAIT)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			return err
		}
		if n <= 0 {
			return nil
		}
	}
}

// Ready is the poll-ready fd exported to callers for integration into their
// own event loop; only meaningful on a ModeWait Handle.
func (h *Handle) Ready() int {
	if h.listener == nil {
		return -1
	}
	return int(h.listener.Fd())
}

// Ctl registers fd as an ancillary descriptor merged into this Handle's
// wait set; its readiness interrupts a blocking Wait with *AncillaryError.
func (h *Handle) Ctl(fd int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.extra = append(h.extra, fd)
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
