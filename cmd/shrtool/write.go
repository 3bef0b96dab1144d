package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	shr "github.com/paultag/go-shr"
)

var writeCmdArgs struct {
	Path     string
	Nonblock bool
	Buffered bool
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write stdin, one message per line, into a ring",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := shr.OpenWROnly
		if writeCmdArgs.Nonblock {
			flags |= shr.OpenNonblock
		}
		if writeCmdArgs.Buffered {
			flags |= shr.OpenBuffered
		}

		h, err := shr.Open(writeCmdArgs.Path, flags)
		if err != nil {
			return fmt.Errorf("write: open: %w", err)
		}
		defer h.Close()

		scan := bufio.NewScanner(os.Stdin)
		scan.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scan.Scan() {
			if _, err := h.Write(scan.Bytes()); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		return scan.Err()
	},
}

func init() {
	writeCmd.Flags().StringVar(&writeCmdArgs.Path, "path", "", "ring file to write to")
	writeCmd.Flags().BoolVar(&writeCmdArgs.Nonblock, "nonblock", false, "fail instead of blocking when the ring is full")
	writeCmd.Flags().BoolVar(&writeCmdArgs.Buffered, "buffered", false, "stage writes in a local cache when the ring is momentarily full")
	writeCmd.MarkFlagRequired("path")
}
