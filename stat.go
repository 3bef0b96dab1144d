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

import "time"

// Stat mirrors shr_stat's result: the cumulative counters for the current
// stats period plus the ring's instantaneous state.
type Stat struct {
	Start time.Time

	BytesWritten uint64
	BytesRead    uint64
	MsgsWritten  uint64
	MsgsRead     uint64
	MsgsDropped  uint64
	BytesDropped uint64

	RingBytes     uint64 // N
	UnreadBytes   uint64 // U
	UnreadMsgs    uint64 // M
	IndexCapacity uint64 // MM
	CacheBytes    uint64
	CacheMessages int
	Flags         uint32
}

// Stat returns the current counters and ring state. If reset is true, the
// cumulative counters (but not the instantaneous ones) are zeroed and the
// stats period restarts from now.
func (h *Handle) Stat(reset bool) (Stat, error) {
	if err := h.lock.lock(); err != nil {
		return Stat{}, err
	}
	defer h.lock.unlock()

	s := Stat{
		Start:         time.Unix(h.hdr.Stats.StartSec, h.hdr.Stats.StartUsec*1000),
		BytesWritten:  h.hdr.Stats.BytesWritten,
		BytesRead:     h.hdr.Stats.BytesRead,
		MsgsWritten:   h.hdr.Stats.MsgsWritten,
		MsgsRead:      h.hdr.Stats.MsgsRead,
		MsgsDropped:   h.hdr.Stats.MsgsDropped,
		BytesDropped:  h.hdr.Stats.BytesDropped,
		RingBytes:     h.hdr.N,
		UnreadBytes:   h.hdr.U,
		UnreadMsgs:    h.hdr.M,
		IndexCapacity: h.hdr.MM,
		Flags:         h.hdr.Flags,
	}
	if h.cache != nil {
		s.CacheBytes = h.cache.bytes
		s.CacheMessages = len(h.cache.messages)
	}

	if reset {
		now := time.Now()
		h.hdr.Stats = statBlock{
			StartSec:  now.Unix(),
			StartUsec: int64(now.Nanosecond() / 1000),
		}
	}
	return s, nil
}

// RawHeader returns a copy of the control block's raw bytes, for
// diagnostic hex dumps (shrtool stat --dump). Callers should not attempt
// to interpret the bytes themselves beyond display; use Stat for the
// decoded view.
func (h *Handle) RawHeader() []byte {
	if err := h.lock.lock(); err != nil {
		return nil
	}
	defer h.lock.unlock()
	out := make([]byte, headerSize)
	copy(out, h.base[:headerSize])
	return out
}
