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
	"errors"
	"fmt"
)

// Sentinel errors surfaced across the Read/Write/Readv/Writev family. A
// positive count with a nil error is success; ErrWouldBlock distinguishes
// the non-blocking "ring full/empty" case (caller-visible count 0) from a
// real failure.
var (
	// ErrWouldBlock is returned by a non-blocking handle when there is no
	// message to read or no room to write.
	ErrWouldBlock = errors.New("shr: would block")

	// ErrMessageTooBig is returned by Read/Readv when the next message's
	// body is larger than the caller's buffer. The ring state is
	// unchanged; the caller may retry with a bigger buffer.
	ErrMessageTooBig = errors.New("shr: message too large for buffer")

	// ErrClosed is returned by Read/Readv/Write/Writev on a Handle after
	// Close; other methods do not check for a closed Handle.
	ErrClosed = errors.New("shr: handle closed")

	// ErrReadOnly / ErrWriteOnly guard calling Write on a read handle or
	// Read on a write handle.
	ErrReadOnly  = errors.New("shr: handle is read-only")
	ErrWriteOnly = errors.New("shr: handle is write-only")

	// ErrInvalid covers invalid-argument rejections made before any lock
	// is taken: zero-length messages, oversized messages, too many iovecs,
	// disallowed flag combinations.
	ErrInvalid = errors.New("shr: invalid argument")

	// ErrInvariant is returned by Open when validation of an existing
	// ring's header fails (bad magic, size, or cursor bounds).
	ErrInvariant = errors.New("shr: ring invariant violated")

	// ErrNoSpace names the "reclaim could not make room" condition. No
	// function in this package returns it: reclaim panics in that case
	// instead, and non-drop rings never call reclaim.
	ErrNoSpace = errors.New("shr: reclaim could not free enough space")
)

// AncillaryError wraps bw.AncillaryError for callers that registered an
// extra fd via Ctl: it is returned by a blocking Read/Readv/Write/Writev
// when that fd became ready before data did. The lock is not held on
// return.
type AncillaryError struct {
	FD int
}

func (e *AncillaryError) Error() string {
	return fmt.Sprintf("shr: ancillary fd %d ready while blocked", e.FD)
}
