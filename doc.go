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

// Package shr implements a multi-process, memory-mapped message ring usable
// by unrelated processes on the same host as an IPC medium. Producers
// enqueue byte-framed messages with Write/Writev; consumers dequeue them
// with Read/Readv. The ring persists as a single file (typically on a
// ramdisk) and every process able to map that file participates without a
// central daemon: the control header, the data area, the message index and
// the block/wake coordination records all live inside the mapped region.
//
// A Ring is opened either for reading or for writing. Concurrent mutation
// from any number of processes is serialized by an advisory range lock on
// the backing file descriptor (see lock.go); cross-process blocking between
// lock-protected operations is handled by the bw package.
package shr

// vim: foldmethod=marker
