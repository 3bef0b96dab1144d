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

// UNSAFE — all functions in this file assume the caller holds h.lock.
//
// Byte and slot accounting for the data area and message index: wrap-aware
// copy in/out, the drop-policy reclaim loop, and the advance-eldest
// procedure every write runs before copying in, which retires any
// still-present message whose bytes the write overlaps.

// freeBytes returns the bytes currently free in the data area.
func (h *Handle) freeBytes() uint64 {
	return h.hdr.N - h.hdr.U
}

// presentSlots returns the number of occupied index slots: in non-farm mode
// that's unread messages (M); in farm mode it's messages present (MP),
// since farm reads don't free slots.
func (h *Handle) presentSlots() uint64 {
	if h.farm {
		return h.hdr.MP
	}
	return h.hdr.M
}

func (h *Handle) freeSlots() uint64 {
	return h.hdr.MM - h.presentSlots()
}

// writeBody copies buf into the data area starting at the current write
// cursor I, wrapping past N as needed, and advances I. It does not touch
// U, M, MP or the index — the caller records those.
func (h *Handle) writeBody(buf []byte) (pos uint64) {
	pos = h.hdr.I
	n := uint64(len(buf))
	off := h.dataOff + uintptr(pos)
	first := h.hdr.N - pos
	if first > n {
		first = n
	}
	copy(h.base[off:off+uintptr(first)], buf[:first])
	if first < n {
		copy(h.base[h.dataOff:h.dataOff+uintptr(n-first)], buf[first:])
	}
	h.hdr.I = (pos + n) % h.hdr.N
	return pos
}

// readBody copies length bytes starting at data-area offset pos into dst,
// wrapping past N as needed. dst must have length >= length.
func (h *Handle) readBody(pos, length uint64, dst []byte) {
	off := h.dataOff + uintptr(pos)
	first := h.hdr.N - pos
	if first > length {
		first = length
	}
	copy(dst[:first], h.base[off:off+uintptr(first)])
	if first < length {
		copy(dst[first:length], h.base[h.dataOff:h.dataOff+uintptr(length-first)])
	}
}

// reclaim drops eldest messages until both needBytes of free data-area
// space and needSlots of free index slots are available. Only called under
// the lock when the ring was created with FlagDrop. reclaim must always be
// able to leave enough room; failing to do so is a bug in this package, not
// a caller error, so it panics rather than looping forever.
func (h *Handle) reclaim(needBytes, needSlots uint64) {
	for h.freeBytes() < needBytes || h.freeSlots() < needSlots {
		if h.hdr.MP == 0 {
			panic("shr: reclaim ran out of messages before freeing enough space")
		}
		h.dropEldest()
	}
}

// dropEldest removes the single eldest message from the ring, updating
// stats, decrementing MP and M, and advancing E/Q by one (and, in non-farm
// mode, R as well when it points at the dropped message).
func (h *Handle) dropEldest() {
	e := h.idx[h.hdr.E]
	h.hdr.U -= e.Length
	h.hdr.Stats.MsgsDropped++
	h.hdr.Stats.BytesDropped += e.Length
	h.hdr.MP--
	if !h.farm {
		h.hdr.M--
		if h.hdr.R == h.hdr.E {
			h.hdr.R = (h.hdr.R + 1) % h.hdr.MM
		}
	} else {
		h.hdr.M--
	}
	h.hdr.E = (h.hdr.E + 1) % h.hdr.MM
	h.hdr.Q++
}

// advanceEldest retires index slots the caller's about-to-happen write of
// writeLen bytes starting at writeStart will physically overwrite. In
// non-farm mode a read retires its message's index slot as it consumes it;
// in farm mode only a drop frees a message at all. Either way, by the time
// commitWrite calls this, the free-space check already guarantees any
// message in the write's path has had its bytes released, so this loop
// only advances E/MP/Q and never adjusts U or M.
func (h *Handle) advanceEldest(writeStart, writeLen uint64) {
	for h.hdr.MP > 0 && rangesIntersect(h.idx[h.hdr.E].Position, h.idx[h.hdr.E].Length, writeStart, writeLen, h.hdr.N) {
		h.hdr.MP--
		h.hdr.E = (h.hdr.E + 1) % h.hdr.MM
		h.hdr.Q++
	}
}

// rangesIntersect reports whether the wrapping byte range [aStart,
// aStart+aLen) intersects [bStart, bStart+bLen) modulo ringSize. Both
// ranges may individually wrap past ringSize once.
func rangesIntersect(aStart, aLen, bStart, bLen, ringSize uint64) bool {
	if aLen == 0 || bLen == 0 {
		return false
	}
	contains := func(start, length, pos uint64) bool {
		if start+length <= ringSize {
			return pos >= start && pos < start+length
		}
		return pos >= start || pos < (start+length)%ringSize
	}
	// Two ranges on the ring intersect iff one contains the other's start
	// point.
	if contains(aStart, aLen, bStart) || contains(bStart, bLen, aStart) {
		return true
	}
	// Sample b's last byte too, as an extra check.
	bEnd := (bStart + bLen - 1) % ringSize
	return contains(aStart, aLen, bEnd)
}
