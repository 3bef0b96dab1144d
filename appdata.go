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

// AppData returns a copy of the opaque application-data blob stored in the
// ring at creation time. Returns ErrInvalid if the ring was created
// without FlagAppData.
func (h *Handle) AppData() ([]byte, error) {
	if h.hdr.Flags&FlagAppData == 0 {
		return nil, fmt.Errorf("%w: ring has no app-data region", ErrInvalid)
	}
	if err := h.lock.lock(); err != nil {
		return nil, err
	}
	defer h.lock.unlock()

	out := make([]byte, h.hdr.AppLen)
	copy(out, h.base[h.appOff:h.appOff+uintptr(h.hdr.AppLen)])
	return out, nil
}

// SetAppData overwrites the app-data region. data must not be longer than
// the region reserved at creation time. This package allows an open writer
// to update app-data after creation (see DESIGN.md), still serialized by
// the same file-range lock as every other mutation.
func (h *Handle) SetAppData(data []byte) error {
	if h.readOnly {
		return ErrReadOnly
	}
	if h.hdr.Flags&FlagAppData == 0 {
		return fmt.Errorf("%w: ring has no app-data region", ErrInvalid)
	}
	if uint64(len(data)) > h.hdr.AppLen {
		return fmt.Errorf("%w: app data exceeds reserved region", ErrInvalid)
	}
	if err := h.lock.lock(); err != nil {
		return err
	}
	defer h.lock.unlock()

	copy(h.base[h.appOff:h.appOff+uintptr(h.hdr.AppLen)], data)
	return nil
}
