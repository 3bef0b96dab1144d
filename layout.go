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
	"unsafe"

	"github.com/paultag/go-shr/bw"
)

// magic is stamped at ring creation and never changes thereafter.
var magic = [8]byte{'l', 'i', 'b', 's', 'h', 'r', '4', 0}

// Init-time flags, stamped into the header at creation and immutable after.
const (
	FlagKeepExisting uint32 = 1 << 0 // don't clobber an existing file
	FlagDrop         uint32 = 1 << 1 // reclaim eldest messages instead of blocking/ENOSPC
	FlagAppData      uint32 = 1 << 2 // an app-data blob follows the index
	FlagFarm         uint32 = 1 << 3 // multi-reader broadcast semantics; implies FlagDrop
	FlagMaxMsgs      uint32 = 1 << 4 // caller supplied an explicit index slot count
	FlagSync         uint32 = 1 << 5 // msync at the end of every locked write and read
	FlagMlock        uint32 = 1 << 6 // mlock the mapped region at open
)

// Open-time flags. These never enter the shared header; they describe a
// single process's handle onto the ring.
const (
	OpenRDOnly   uint32 = 1 << 12
	OpenWROnly   uint32 = 1 << 13
	OpenNonblock uint32 = 1 << 14
	OpenBuffered uint32 = 1 << 15
)

// statBlock is the mutable accounting block embedded in the header. Fields
// mirror shr_stat's cumulative counters; StartSec/StartUsec mark the
// beginning of the current stats period.
type statBlock struct {
	BytesWritten uint64
	BytesRead    uint64
	MsgsWritten  uint64
	MsgsRead     uint64
	MsgsDropped  uint64
	BytesDropped uint64
	StartSec     int64
	StartUsec    int64
}

// header is the control block at offset 0 of the ring file, overlaid
// directly onto the mapped bytes. Every field here is read or written only
// while the file-range lock is held (see lock.go). headerSize is taken
// from unsafe.Sizeof(header{}), so the on-file layout follows this struct
// definition.
type header struct {
	Magic [8]byte
	Flags uint32
	_pad0 uint32

	N  uint64 // data-area capacity in bytes
	I  uint64 // next-write byte offset into data area
	U  uint64 // unread bytes currently in data area
	M  uint64 // unread messages
	MP uint64 // messages present (read or unread; farm mode)
	R  uint64 // index slot of next message to read (non-farm)
	E  uint64 // index slot of eldest present message
	Q  uint64 // sequence number of eldest message (monotone)

	Stats statBlock

	MM     uint64 // index capacity in slots
	MVLen  uint64 // padding length between data area and index
	PadLen uint64 // reserved
	AppLen uint64 // app-data length in bytes

	W2R bw.Record // writer -> reader wake direction
	R2W bw.Record // reader -> writer wake direction
}

// indexEntry locates one message body in the data area. Position is a byte
// offset into the data area; the body may wrap past N.
type indexEntry struct {
	Position uint64
	Length   uint64
}

const (
	headerSize     = unsafe.Sizeof(header{})
	indexEntrySize = unsafe.Sizeof(indexEntry{})
	wordSize       = unsafe.Sizeof(uintptr(0))
)

func init() {
	// Only checks that neither layout type is zero-sized; field offsets
	// and sizes are not checked here.
	if headerSize == 0 || indexEntrySize == 0 {
		panic("shr: zero-sized layout type")
	}
}

// headerAt overlays a *header onto the first headerSize bytes of base.
func headerAt(base []byte) *header {
	return (*header)(unsafe.Pointer(&base[0]))
}

// indexAt returns the message-index slice overlaid on base, starting at
// byte offset off and holding n entries.
func indexAt(base []byte, off uintptr, n uint64) []indexEntry {
	if n == 0 {
		return nil
	}
	ptr := unsafe.Pointer(&base[off])
	return unsafe.Slice((*indexEntry)(ptr), int(n))
}

// defaultIndexSlots picks an index size proportional to the data area when
// the caller doesn't specify one explicitly.
func defaultIndexSlots(dataSize uint64) uint64 {
	return 100 + dataSize/100
}

// alignUp rounds n up to the next multiple of align (align must be a power
// of two).
func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}
