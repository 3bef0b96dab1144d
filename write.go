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

package shr

import (
	"fmt"
	"math"
)

// Write enqueues a single message. It is a thin wrapper around Writev with
// a one-entry vector.
func (h *Handle) Write(buf []byte) (int, error) {
	return h.Writev([][]byte{buf})
}

// Writev enqueues each buffer of iov as its own message, all under one
// lock acquisition. A buffered handle that finds no room in the ring
// instead stages the concatenation of iov in the write-side cache, where it
// is kept, and later flushed, as a single message.
func (h *Handle) Writev(iov [][]byte) (int, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if h.readOnly {
		return 0, ErrReadOnly
	}

	total := 0
	for _, b := range iov {
		total += len(b)
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: zero-length message", ErrInvalid)
	}
	if total > math.MaxInt32 || uint64(total) > h.hdr.N {
		return 0, fmt.Errorf("%w: message exceeds ring capacity", ErrInvalid)
	}
	if uint64(len(iov)) > h.hdr.MM {
		return 0, fmt.Errorf("%w: too many buffers for index capacity", ErrInvalid)
	}

	if h.cache != nil {
		return h.cacheWrite(iov, uint64(total))
	}
	return h.writevLocked(iov, uint64(total))
}

// writevLocked performs the vector write directly against the mapped ring,
// blocking or failing depending on the handle's open mode and the ring's
// drop policy.
func (h *Handle) writevLocked(iov [][]byte, total uint64) (int, error) {
	for {
		if err := h.lock.lock(); err != nil {
			return 0, err
		}

		if h.freeBytes() >= total && h.freeSlots() >= uint64(len(iov)) {
			h.commitWrite(iov, total)
			h.lock.unlock()
			return int(total), nil
		}

		if h.hdr.Flags&FlagDrop != 0 {
			h.reclaim(total, uint64(len(iov)))
			h.commitWrite(iov, total)
			h.lock.unlock()
			return int(total), nil
		}

		h.lock.unlock()
		if h.nonblock {
			return 0, ErrWouldBlock
		}
		if err := h.ensureWaitBW(); err != nil {
			return 0, err
		}
		if err := h.waitBW.Wait(); err != nil {
			if fd, ok := ancillaryFD(err); ok {
				return 0, &AncillaryError{FD: fd}
			}
			return 0, err
		}
		// retry from the top
	}
}

// commitWrite performs steps 6-9 of the write path with the lock already
// held and space/slots already confirmed available: advance-eldest (a
// no-op unless the physical write range truly overlaps a still-present
// index entry), copy each buffer's body, record its index entry, update
// counters and stats, and wake readers.
func (h *Handle) commitWrite(iov [][]byte, total uint64) {
	h.advanceEldest(h.hdr.I, total)

	for _, buf := range iov {
		pos := h.writeBody(buf)
		slot := (h.hdr.E + h.hdr.MP) % h.hdr.MM
		h.idx[slot] = indexEntry{Position: pos, Length: uint64(len(buf))}
		h.hdr.U += uint64(len(buf))
		h.hdr.MP++
		h.hdr.M++
	}

	h.hdr.Stats.BytesWritten += total
	h.hdr.Stats.MsgsWritten += uint64(len(iov))

	if h.wakeBW != nil {
		if err := h.wakeBW.Wake(); err != nil {
			h.log.Warnw("shr: wake writer->reader failed", "err", err)
		}
	}
	if h.hdr.Flags&FlagSync != 0 {
		h.msync()
	}
}
