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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// bindAbstract creates a SOCK_DGRAM socket bound to a freshly generated
// abstract-namespace address (Linux's "\0"-prefixed namespace, not backed
// by any filesystem path) and returns it along with the short name stored
// in the shared record. SO_PASSCRED is enabled so peer credentials can be
// inspected for tracing and liveness confirmation.
func bindAbstract() (*os.File, [NameLen]byte, error) {
	// The name is hex text so that /proc/net/unix, which prints abstract
	// names byte for byte, renders it as one whitespace-free field the
	// liveness check can match.
	var name [NameLen]byte
	var raw [NameLen / 2]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, name, err
	}
	hex.Encode(name[:], raw[:])

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, name, err
	}

	addr := &unix.SockaddrUnix{Name: "\x00" + string(name[:])}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, name, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PASSCRED, 1); err != nil {
		unix.Close(fd)
		return nil, name, fmt.Errorf("SO_PASSCRED: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, name, err
	}
	return os.NewFile(uintptr(fd), "bw-listener"), name, nil
}

// dialAbstract opens a SOCK_DGRAM socket connected to the abstract-namespace
// address identified by name.
func dialAbstract(name [NameLen]byte) (*os.File, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	addr := &unix.SockaddrUnix{Name: "\x00" + string(name[:])}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), "bw-peer"), nil
}
