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
	"sync"

	"golang.org/x/sys/unix"
)

// rangeLock is the whole-ring, whole-file advisory lock every mutating
// access to the header, data area or index is bracketed by. It is
// reentrant within the holding descriptor (re-acquire is a no-op) and
// releases implicitly when fd is closed. The mutex here guards only the
// reentrancy count
// against concurrent goroutines inside this process; the flock itself is
// what serializes against other processes.
type rangeLock struct {
	fd    int
	mu    sync.Mutex
	depth int
}

func newRangeLock(fd int) *rangeLock {
	return &rangeLock{fd: fd}
}

// lock acquires the exclusive range lock, blocking until available.
// Release with unlock. Safe to call reentrantly from the same goroutine.
func (l *rangeLock) lock() error {
	l.mu.Lock()
	if l.depth > 0 {
		l.depth++
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 0}
	for {
		err := unix.FcntlFlock(uintptr(l.fd), unix.F_SETLKW, &lk)
		if err == nil {
			break
		}
		if err == unix.EINTR {
			continue
		}
		return err
	}

	l.mu.Lock()
	l.depth = 1
	l.mu.Unlock()
	return nil
}

// unlock releases one level of the reentrant lock. Once depth reaches
// zero, the underlying flock is released.
func (l *rangeLock) unlock() error {
	l.mu.Lock()
	if l.depth == 0 {
		l.mu.Unlock()
		return nil
	}
	l.depth--
	release := l.depth == 0
	l.mu.Unlock()

	if !release {
		return nil
	}

	lk := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: 0, Len: 0}
	return unix.FcntlFlock(uintptr(l.fd), unix.F_SETLK, &lk)
}
