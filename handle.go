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

import "fmt"

// SelectableFD returns the file descriptor a caller can fold into its own
// poll/select/epoll loop in place of calling Read/Readv's blocking form
// directly. It is defined only for a handle opened OpenRDOnly|OpenNonblock;
// a writer can't poll externally for space availability and must use
// Write/Writev (or Flush) directly.
func (h *Handle) SelectableFD() (int, error) {
	if !h.readOnly || !h.nonblock {
		return -1, fmt.Errorf("%w: selectable fd is only defined for a non-blocking reader", ErrInvariant)
	}
	if h.waitBW == nil {
		return -1, fmt.Errorf("%w: reader has no wait channel", ErrInvariant)
	}
	return h.waitBW.Ready(), nil
}

// Ctl registers an additional file descriptor (for example a signalfd) into
// this handle's wait set. Its readiness interrupts a blocking Readv/Writev
// with an *AncillaryError carrying fd, letting a caller multiplex its own
// wakeup sources through the same blocking call.
func (h *Handle) Ctl(fd int) error {
	if h.waitBW == nil {
		if h.readOnly {
			return fmt.Errorf("%w: reader has no wait channel", ErrInvariant)
		}
		if err := h.ensureWaitBW(); err != nil {
			return err
		}
	}
	h.waitBW.Ctl(fd)
	return nil
}
