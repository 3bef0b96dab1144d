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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/paultag/go-shr/bw"
)

const allFlags = FlagKeepExisting | FlagDrop | FlagAppData | FlagFarm | FlagMaxMsgs | FlagSync | FlagMlock

// InitOption configures Init beyond the data size and flag bitset.
type InitOption func(*initConfig)

type initConfig struct {
	appData []byte
	maxMsgs uint64
}

// WithAppData supplies the opaque application-data blob copied into the
// ring at creation time. Requires FlagAppData.
func WithAppData(data []byte) InitOption {
	return func(c *initConfig) { c.appData = data }
}

// WithMaxMessages overrides the default index slot count
// (100 + data_size/100). Requires FlagMaxMsgs.
func WithMaxMessages(n uint64) InitOption {
	return func(c *initConfig) { c.maxMsgs = n }
}

// Init creates (or validates the existence of) a ring file at path holding
// dataSize bytes of data area. If flags includes
// FlagKeepExisting and the file already exists, Init leaves it untouched
// and returns nil. Otherwise any existing file is unlinked and a fresh one
// is created, sized, mapped, stamped, and unmapped.
func Init(path string, dataSize uint64, flags uint32, opts ...InitOption) error {
	if dataSize == 0 {
		return fmt.Errorf("%w: data size must be nonzero", ErrInvalid)
	}
	if flags&^allFlags != 0 {
		return fmt.Errorf("%w: reserved flag bits set", ErrInvalid)
	}
	if flags&FlagFarm != 0 {
		flags |= FlagDrop // farm mode implies drop
	}

	cfg := &initConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if flags&FlagAppData == 0 && len(cfg.appData) > 0 {
		return fmt.Errorf("%w: app data given without FlagAppData", ErrInvalid)
	}
	if flags&FlagMaxMsgs == 0 && cfg.maxMsgs != 0 {
		return fmt.Errorf("%w: max messages given without FlagMaxMsgs", ErrInvalid)
	}

	if flags&FlagKeepExisting != 0 {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			return err
		}
	} else {
		_ = os.Remove(path)
	}

	mm := cfg.maxMsgs
	if flags&FlagMaxMsgs == 0 {
		mm = defaultIndexSlots(dataSize)
	}
	if mm == 0 {
		return fmt.Errorf("%w: index slot count must be nonzero", ErrInvalid)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	padLen := alignUp(headerSize+uintptr(dataSize), wordSize) - (headerSize + uintptr(dataSize))
	total := headerSize + uintptr(dataSize) + padLen + uintptr(mm)*indexEntrySize + uintptr(len(cfg.appData))

	if err := f.Truncate(int64(total)); err != nil {
		// Hugepage-backed filesystems don't support ftruncate; tolerate
		// that specific failure and proceed assuming the file was
		// pre-sized by the caller (e.g. a ramdisk provisioning step
		// outside this package's scope).
		if err != unix.ENOTSUP && err != unix.EINVAL {
			return err
		}
	}

	base, err := unix.Mmap(int(f.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	defer unix.Munmap(base)

	for i := range base[:headerSize] {
		base[i] = 0
	}
	hdr := headerAt(base)
	hdr.Magic = magic
	hdr.Flags = flags
	hdr.N = dataSize
	hdr.MM = mm
	hdr.MVLen = uint64(padLen)
	hdr.AppLen = uint64(len(cfg.appData))
	now := time.Now()
	hdr.Stats.StartSec = now.Unix()
	hdr.Stats.StartUsec = int64(now.Nanosecond() / 1000)

	if len(cfg.appData) > 0 {
		appOff := headerSize + uintptr(dataSize) + padLen + uintptr(mm)*indexEntrySize
		copy(base[appOff:], cfg.appData)
	}

	if flags&FlagSync != 0 {
		if err := unix.Msync(base, unix.MS_SYNC); err != nil {
			return err
		}
	}
	return nil
}

// Handle is a per-process open ring: the mapped view, the file-range lock,
// the BW channels used to block and wake peers, and (for a buffered
// writer) the write-side cache. A Handle must not be shared between
// goroutines without external serialization.
type Handle struct {
	file *os.File
	lock *rangeLock
	base []byte
	hdr  *header
	idx  []indexEntry

	dataOff uintptr
	appOff  uintptr

	log *zap.SugaredLogger

	readOnly bool
	nonblock bool
	buffered bool
	farm     bool
	mayBlock bool // writer: not nonblock and not drop-mode
	qLocal   uint64
	missed   uint64

	waitBW *bw.Handle // reader: waits on W2R; writer: waits on R2W (maybe nil, lazy)
	wakeBW *bw.Handle // reader: wakes R2W; writer: wakes W2R

	cache *writeCache

	mu     sync.Mutex
	closed bool
}

// OpenOption configures Open beyond the required read/write direction.
type OpenOption func(*openConfig)

type openConfig struct {
	log *zap.SugaredLogger
}

// WithLogger attaches a structured logger used for one-line warnings on
// system-call failures.
func WithLogger(log *zap.SugaredLogger) OpenOption {
	return func(c *openConfig) { c.log = log }
}

// Open maps an existing ring file for reading or writing. flags must set
// exactly one of OpenRDOnly or OpenWROnly, and may additionally set
// OpenNonblock and/or OpenBuffered.
func Open(path string, flags uint32, opts ...OpenOption) (*Handle, error) {
	rd := flags&OpenRDOnly != 0
	wr := flags&OpenWROnly != 0
	if rd == wr {
		return nil, fmt.Errorf("%w: exactly one of OpenRDOnly/OpenWROnly required", ErrInvalid)
	}

	cfg := &openConfig{}
	for _, o := range opts {
		o(cfg)
	}
	log := cfg.log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if uintptr(st.Size()) < headerSize {
		f.Close()
		return nil, fmt.Errorf("%w: file smaller than header", ErrInvariant)
	}

	base, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	hdr := headerAt(base)
	if hdr.Magic != magic {
		unix.Munmap(base)
		f.Close()
		return nil, fmt.Errorf("%w: bad magic", ErrInvariant)
	}

	dataOff := headerSize
	idxOff := dataOff + uintptr(hdr.N) + uintptr(hdr.MVLen)
	appOff := idxOff + uintptr(hdr.MM)*indexEntrySize
	expected := appOff + uintptr(hdr.AppLen)
	if uintptr(len(base)) < expected {
		unix.Munmap(base)
		f.Close()
		return nil, fmt.Errorf("%w: file smaller than expected layout", ErrInvariant)
	}
	if hdr.U > hdr.N || hdr.I >= hdr.N || hdr.R >= hdr.MM || hdr.E >= hdr.MM {
		unix.Munmap(base)
		f.Close()
		return nil, fmt.Errorf("%w: cursor bounds invalid", ErrInvariant)
	}

	h := &Handle{
		file:     f,
		lock:     newRangeLock(int(f.Fd())),
		base:     base,
		hdr:      hdr,
		idx:      indexAt(base, idxOff, hdr.MM),
		dataOff:  dataOff,
		appOff:   appOff,
		log:      log,
		readOnly: rd,
		nonblock: flags&OpenNonblock != 0,
		buffered: flags&OpenBuffered != 0,
		farm:     hdr.Flags&FlagFarm != 0,
	}

	if err := h.setupBW(); err != nil {
		unix.Munmap(base)
		f.Close()
		return nil, err
	}

	if hdr.Flags&FlagMlock != 0 {
		if err := unix.Mlock(base); err != nil {
			h.Close()
			return nil, fmt.Errorf("mlock: %w", err)
		}
	}

	if h.buffered && !h.readOnly {
		h.cache = newWriteCache(int(hdr.MM))
	}

	return h, nil
}

// setupBW opens the BW directions this handle needs, and for a farm reader
// positions the local sequence cursor at the ring's
// current eldest so a newly opened reader observes the same messages any
// other currently-open farm reader still has available.
func (h *Handle) setupBW() error {
	if err := h.lock.lock(); err != nil {
		return err
	}
	defer h.lock.unlock()

	if h.readOnly {
		if h.farm {
			h.qLocal = h.hdr.Q
		}

		wait, err := bw.Open(&h.hdr.W2R, bw.ModeWait, h.log)
		if err != nil {
			return err
		}
		h.waitBW = wait
		wake, err := bw.Open(&h.hdr.R2W, bw.ModeWake, h.log)
		if err != nil {
			wait.Close()
			return err
		}
		h.wakeBW = wake
		_ = h.waitBW.Force(h.hdr.U > 0)
		return nil
	}

	wake, err := bw.Open(&h.hdr.W2R, bw.ModeWake, h.log)
	if err != nil {
		return err
	}
	h.wakeBW = wake

	h.mayBlock = !h.nonblock && h.hdr.Flags&FlagDrop == 0
	if h.mayBlock {
		wait, err := bw.Open(&h.hdr.R2W, bw.ModeWait, h.log)
		if err != nil {
			wake.Close()
			return err
		}
		h.waitBW = wait
	}
	return nil
}

// ensureWaitBW lazily opens the writer's wait-side BW when Open did not
// (a non-blocking or drop-mode writer), the first time Ctl or a blocking
// write needs it.
func (h *Handle) ensureWaitBW() error {
	if h.waitBW != nil {
		return nil
	}
	if err := h.lock.lock(); err != nil {
		return err
	}
	defer h.lock.unlock()
	wait, err := bw.Open(&h.hdr.R2W, bw.ModeWait, h.log)
	if err != nil {
		return err
	}
	h.waitBW = wait
	return nil
}

// Close flushes any pending write cache best-effort, releases the BW
// handles under the lock, unmaps the ring and closes the backing
// descriptor (which also releases any residual range lock).
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if h.cache != nil {
		_, _ = h.flush(false)
	}

	var errs *multierror.Error
	if err := h.lock.lock(); err == nil {
		if h.waitBW != nil {
			h.waitBW.Close()
		}
		if h.wakeBW != nil {
			h.wakeBW.Close()
		}
		h.lock.unlock()
	} else {
		errs = multierror.Append(errs, err)
	}

	if err := unix.Munmap(h.base); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("munmap: %w", err))
	}
	if err := h.file.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close: %w", err))
	}
	return errs.ErrorOrNil()
}

// Reset discards all data currently in the ring, returning it to an empty
// state.
func (h *Handle) Reset() error {
	if err := h.lock.lock(); err != nil {
		return err
	}
	defer h.lock.unlock()
	h.hdr.I, h.hdr.U, h.hdr.M, h.hdr.MP = 0, 0, 0, 0
	h.hdr.R, h.hdr.E, h.hdr.Q = 0, 0, 0
	return nil
}
