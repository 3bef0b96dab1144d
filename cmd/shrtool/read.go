package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	shr "github.com/paultag/go-shr"
)

var readCmdArgs struct {
	Path     string
	Nonblock bool
	BufSize  int
	Count    int
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read messages from a ring and print them, one per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := shr.OpenRDOnly
		if readCmdArgs.Nonblock {
			flags |= shr.OpenNonblock
		}

		h, err := shr.Open(readCmdArgs.Path, flags)
		if err != nil {
			return fmt.Errorf("read: open: %w", err)
		}
		defer h.Close()

		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()

		buf := make([]byte, readCmdArgs.BufSize)
		for n := 0; readCmdArgs.Count == 0 || n < readCmdArgs.Count; n++ {
			msg, err := h.Read(buf)
			if err != nil {
				if errors.Is(err, shr.ErrWouldBlock) {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			out.Write(buf[:msg])
			out.WriteByte('\n')
		}
		return nil
	},
}

func init() {
	readCmd.Flags().StringVar(&readCmdArgs.Path, "path", "", "ring file to read from")
	readCmd.Flags().BoolVar(&readCmdArgs.Nonblock, "nonblock", false, "don't block when the ring is empty")
	readCmd.Flags().IntVar(&readCmdArgs.BufSize, "buf-size", 64*1024, "read buffer size in bytes")
	readCmd.Flags().IntVar(&readCmdArgs.Count, "count", 0, "stop after this many messages (0 = unbounded)")
	readCmd.MarkFlagRequired("path")
}
