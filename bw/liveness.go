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
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pruneRecord clears every occupied slot whose registering process is no
// longer live. Inconclusive results (liveness can't be determined either
// way) leave the slot alone.
func pruneRecord(rec *Record, log *zap.SugaredLogger) {
	for i := range rec.Slots {
		s := &rec.Slots[i]
		if s.PID == 0 {
			continue
		}
		live, ok := pidOwnsSocket(int(s.PID), s.Name)
		if !ok {
			continue // inconclusive, e.g. /proc unavailable
		}
		if !live {
			log.Debugw("bw: pruning dead slot", "slot", i, "pid", s.PID)
			s.PID = 0
			s.Name = [NameLen]byte{}
			rec.Seqno++
		}
	}
}

// pidOwnsSocket reports whether pid is alive AND still holds an open
// abstract-namespace socket with the given name. The second return value
// is false when liveness could not be determined (e.g. /proc is not
// mounted, or a permission error prevented the check), in which case the
// caller must treat the slot as still possibly live.
func pidOwnsSocket(pid int, name [NameLen]byte) (live bool, ok bool) {
	if err := unix.Kill(pid, 0); err == unix.ESRCH {
		return false, true
	} else if err != nil && err != unix.EPERM {
		return false, false
	}
	// Either the signal succeeded, or we got EPERM (process exists but we
	// can't signal it) — either way fall through to the socket-table
	// check, which doesn't require signal permission.

	inodes, err := socketInodesForPID(pid)
	if err != nil {
		return false, false
	}
	if len(inodes) == 0 {
		return false, true
	}

	bound, err := abstractSocketBound(name)
	if err != nil {
		return false, false
	}
	if bound == "" {
		return false, true
	}
	return inodes[bound], true
}

// socketInodesForPID parses /proc/<pid>/fd, following each symlink and
// extracting the inode number out of any entry of the form
// "socket:[12345]".
func socketInodesForPID(pid int) (map[string]bool, error) {
	dir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, ent := range entries {
		target, err := os.Readlink(dir + "/" + ent.Name())
		if err != nil {
			continue
		}
		if !strings.HasPrefix(target, "socket:[") {
			continue
		}
		out[strings.TrimSuffix(strings.TrimPrefix(target, "socket:["), "]")] = true
	}
	return out, nil
}

// abstractSocketBound scans the system-wide abstract-socket table and
// returns the inode bound to the given abstract name, or "" if none is
// bound system-wide.
func abstractSocketBound(name [NameLen]byte) (string, error) {
	f, err := os.Open("/proc/net/unix")
	if err != nil {
		return "", err
	}
	defer f.Close()

	want := "@" + string(name[:])
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 {
			continue
		}
		// Path, when present, is the final field and for an
		// abstract-namespace socket is rendered with a leading '@'
		// followed by the name bytes verbatim.
		path := strings.Join(fields[7:], " ")
		if path == want {
			return fields[6], nil
		}
	}
	return "", nil
}
