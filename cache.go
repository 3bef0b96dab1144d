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

// defaultCacheBytes and defaultCacheSlots bound the write-side cache a
// buffered handle accumulates before it must flush into the ring: the
// cache flushes once a new write would overflow its byte or slot budget.
const (
	defaultCacheBytes = 64 * 1024
	defaultCacheSlots = 8
)

// writeCache buffers whole messages (already flattened from their
// Writev iovec) that didn't fit directly into the ring at write time.
type writeCache struct {
	messages [][]byte
	bytes    uint64
	capBytes uint64
	capSlots int
}

func newWriteCache(ringSlots int) *writeCache {
	slots := defaultCacheSlots
	if ringSlots > 0 && ringSlots < slots {
		slots = ringSlots
	}
	return &writeCache{capBytes: defaultCacheBytes, capSlots: slots}
}

func (c *writeCache) fits(n uint64) bool {
	return len(c.messages) < c.capSlots && c.bytes+n <= c.capBytes
}

func (c *writeCache) stage(msg []byte) {
	c.messages = append(c.messages, msg)
	c.bytes += uint64(len(msg))
}

func (c *writeCache) clear() {
	c.messages = c.messages[:0]
	c.bytes = 0
}

func flatten(iov [][]byte) []byte {
	if len(iov) == 1 {
		out := make([]byte, len(iov[0]))
		copy(out, iov[0])
		return out
	}
	total := 0
	for _, b := range iov {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range iov {
		out = append(out, b...)
	}
	return out
}

// cacheWrite is Writev's entry point for a buffered, non-read-only handle.
// It first attempts a direct, non-blocking write against the mapped ring;
// if that doesn't fit, the message is staged in the cache (flushing the
// cache first if the cache itself is full); if neither has room, it falls
// back to a full blocking Writev (or, for a non-blocking handle, reports
// ErrWouldBlock).
func (h *Handle) cacheWrite(iov [][]byte, total uint64) (int, error) {
	if err := h.lock.lock(); err != nil {
		return 0, err
	}
	fits := h.freeBytes() >= total && h.freeSlots() >= uint64(len(iov))
	drop := h.hdr.Flags&FlagDrop != 0
	if fits || drop {
		if !fits {
			h.reclaim(total, uint64(len(iov)))
		}
		h.commitWrite(iov, total)
		h.lock.unlock()
		return int(total), nil
	}
	h.lock.unlock()

	msg := flatten(iov)

	if h.cache.fits(total) {
		h.cache.stage(msg)
		return int(total), nil
	}

	if _, err := h.flush(!h.nonblock); err != nil && !h.nonblock {
		return 0, err
	}

	if h.cache.fits(total) {
		h.cache.stage(msg)
		return int(total), nil
	}
	if h.nonblock {
		return 0, ErrWouldBlock
	}
	return h.writevLocked(iov, total)
}

// flush writes every message currently staged in the cache into the ring.
// If wait is true and the ring lacks room, flush blocks (subject to the
// handle's own blocking rules) until it can make progress. If wait is
// false and the ring lacks room, the remaining cached messages are
// discarded and flush reports the bytes it did manage to write along with
// ErrWouldBlock.
func (h *Handle) Flush(wait bool) (int, error) {
	return h.flush(wait)
}

func (h *Handle) flush(wait bool) (int, error) {
	if h.cache == nil {
		return 0, nil
	}
	written := 0
	for len(h.cache.messages) > 0 {
		msg := h.cache.messages[0]
		n, err := h.writevBlocking(msg, wait)
		if err != nil {
			if err == ErrWouldBlock && !wait {
				h.cache.clear()
				return written, ErrWouldBlock
			}
			return written, err
		}
		written += n
		h.cache.messages = h.cache.messages[1:]
		h.cache.bytes -= uint64(len(msg))
	}
	return written, nil
}

// writevBlocking writes one already-flattened message. When wait is false
// the attempt is forced non-blocking; when wait is true the handle's own
// nonblock setting decides whether it blocks.
func (h *Handle) writevBlocking(msg []byte, wait bool) (int, error) {
	if !wait {
		nb := h.nonblock
		h.nonblock = true
		defer func() { h.nonblock = nb }()
	}
	return h.writevLocked([][]byte{msg}, uint64(len(msg)))
}
