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

// Read dequeues the next message's body into buf, returning its length.
// It is a thin wrapper around Readv with a one-entry destination.
func (h *Handle) Read(buf []byte) (int, error) {
	n, _, err := h.readv(buf, 1)
	return n, err
}

// Readv dequeues as many whole messages as fit into buf, returning the
// total bytes copied and, for each decoded message, a slice of buf
// locating its body (so callers can fan a batch out without extra
// copying). It handles both the non-farm and farm read paths.
func (h *Handle) Readv(buf []byte) (int, [][]byte, error) {
	return h.readv(buf, 0)
}

// readv implements Read and Readv; maxMsgs of 0 means no message limit.
func (h *Handle) readv(buf []byte, maxMsgs int) (int, [][]byte, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, nil, ErrClosed
	}
	if !h.readOnly {
		return 0, nil, ErrWriteOnly
	}

	for {
		if err := h.lock.lock(); err != nil {
			return 0, nil, err
		}

		if !h.messageReady() {
			h.lock.unlock()
			if h.nonblock {
				if h.waitBW != nil {
					if err := h.waitBW.Force(false); err != nil {
						h.log.Warnw("shr: refresh ready failed", "err", err)
					}
				}
				return 0, nil, ErrWouldBlock
			}
			if err := h.waitBW.Wait(); err != nil {
				if fd, ok := ancillaryFD(err); ok {
					return 0, nil, &AncillaryError{FD: fd}
				}
				return 0, nil, err
			}
			continue
		}

		n, msgs, err := h.drainInto(buf, maxMsgs)
		h.lock.unlock()
		return n, msgs, err
	}
}

// messageReady reports whether the next message is available without
// mutating any state. Must be called under the lock.
func (h *Handle) messageReady() bool {
	if h.farm {
		return h.qLocal < h.hdr.Q+h.hdr.MP
	}
	return h.hdr.M > 0
}

// drainInto copies as many whole messages as fit into buf (at most maxMsgs
// of them, when maxMsgs is nonzero), advancing cursors per mode, and
// returns the byte views located within buf. Called under the lock with at
// least one message known ready.
func (h *Handle) drainInto(buf []byte, maxMsgs int) (int, [][]byte, error) {
	if h.farm && h.qLocal < h.hdr.Q {
		h.missed += h.hdr.Q - h.qLocal
		h.qLocal = h.hdr.Q
	}

	var msgs [][]byte
	off := 0
	first := true
	for h.messageReady() && (maxMsgs == 0 || len(msgs) < maxMsgs) {
		e := h.nextEntry()
		if int(e.Length) > len(buf)-off {
			if first {
				return 0, nil, ErrMessageTooBig
			}
			break
		}

		dst := buf[off : off+int(e.Length)]
		h.readBody(e.Position, e.Length, dst)
		msgs = append(msgs, dst)
		off += int(e.Length)
		first = false

		h.advanceReadCursor(e.Length)
	}

	if off > 0 {
		h.hdr.Stats.BytesRead += uint64(off)
		h.hdr.Stats.MsgsRead += uint64(len(msgs))
		if h.wakeBW != nil {
			if err := h.wakeBW.Wake(); err != nil {
				h.log.Warnw("shr: wake reader->writer failed", "err", err)
			}
		}
	}

	if err := h.refreshReady(); err != nil {
		h.log.Warnw("shr: refresh ready failed", "err", err)
	}
	if h.hdr.Flags&FlagSync != 0 {
		h.msync()
	}
	return off, msgs, nil
}

// nextEntry returns the index entry for the next message to read, per
// mode, without mutating state.
func (h *Handle) nextEntry() indexEntry {
	if h.farm {
		return h.idx[h.qLocal%h.hdr.MM]
	}
	return h.idx[h.hdr.R]
}

// advanceReadCursor consumes the message just copied out by drainInto. A
// non-farm read removes the message from the ring: its bytes and its index
// slot are both released, so E stays equal to R and MP equal to M.
func (h *Handle) advanceReadCursor(length uint64) {
	if h.farm {
		h.qLocal++
		return
	}
	h.hdr.R = (h.hdr.R + 1) % h.hdr.MM
	h.hdr.U -= length
	h.hdr.M--
	h.hdr.MP--
	h.hdr.E = h.hdr.R
	h.hdr.Q++
}

// refreshReady reconciles this reader's selectable/poll-ready fd with the
// current "is there data" predicate (only meaningful for non-blocking
// readers, but harmless to call unconditionally — Force is idempotent).
func (h *Handle) refreshReady() error {
	if h.waitBW == nil {
		return nil
	}
	return h.waitBW.Force(h.messageReady())
}
