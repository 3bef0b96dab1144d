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

package bw

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AncillaryError is returned by Wait when one of the caller-registered
// ancillary descriptors became readable before the listener. The lock is
// not held on return; the caller is expected to handle the fd and either
// retry Wait or unwind.
type AncillaryError struct {
	FD int
}

func (e *AncillaryError) Error() string {
	return fmt.Sprintf("bw: ancillary fd %d ready", e.FD)
}

// Wait blocks a ModeWait Handle until either its listener becomes readable
// (the normal wake path, in which case the pending datagram is drained and
// Wait returns nil) or one of the fds registered via Ctl becomes readable
// first (Wait returns *AncillaryError). The caller must NOT hold the lock
// across Wait — suspension points release the lock first and re-acquire on
// resume.
func (h *Handle) Wait() error {
	if h.mode != ModeWait {
		return fmt.Errorf("bw: Wait called on non-wait handle")
	}

	h.mu.Lock()
	extra := append([]int(nil), h.extra...)
	h.mu.Unlock()

	fds := make([]unix.PollFd, 0, 1+len(extra))
	fds = append(fds, unix.PollFd{Fd: int32(h.listener.Fd()), Events: unix.POLLIN})
	for _, fd := range extra {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	for {
		_, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			return h.drain()
		}
		for i := 1; i < len(fds); i++ {
			if fds[i].Revents&unix.POLLIN != 0 {
				return &AncillaryError{FD: int(fds[i].Fd)}
			}
		}
	}
}
