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
	"github.com/paultag/go-shr/bw"
	"golang.org/x/sys/unix"
)

// msync flushes the mapped region to the backing file when the ring was
// created with FlagSync. Called at the end of each locked write
// (commitWrite) and read (drainInto); other locked regions such as Stat,
// Reset and SetAppData do not msync. Failures are logged, not surfaced: a
// failed msync does not corrupt the in-memory view other processes share
// through the same mapping.
func (h *Handle) msync() {
	if err := unix.Msync(h.base, unix.MS_SYNC); err != nil {
		h.log.Warnw("shr: msync failed", "err", err)
	}
}

// ancillaryFD unwraps a bw.AncillaryError, if err is one, into its fd.
func ancillaryFD(err error) (int, bool) {
	if ae, ok := err.(*bw.AncillaryError); ok {
		return ae.FD, true
	}
	return 0, false
}
