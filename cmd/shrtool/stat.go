package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	shr "github.com/paultag/go-shr"
)

var statCmdArgs struct {
	Path  string
	Reset bool
	Dump  bool
}

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print a ring's counters and state",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := shr.Open(statCmdArgs.Path, shr.OpenRDOnly|shr.OpenNonblock)
		if err != nil {
			return fmt.Errorf("stat: open: %w", err)
		}
		defer h.Close()

		s, err := h.Stat(statCmdArgs.Reset)
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}

		fmt.Printf("since:          %s\n", s.Start.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Printf("bytes written:  %d\n", s.BytesWritten)
		fmt.Printf("bytes read:     %d\n", s.BytesRead)
		fmt.Printf("msgs written:   %d\n", s.MsgsWritten)
		fmt.Printf("msgs read:      %d\n", s.MsgsRead)
		fmt.Printf("msgs dropped:   %d\n", s.MsgsDropped)
		fmt.Printf("bytes dropped:  %d\n", s.BytesDropped)
		fmt.Printf("ring bytes:     %d\n", s.RingBytes)
		fmt.Printf("unread bytes:   %d\n", s.UnreadBytes)
		fmt.Printf("unread msgs:    %d\n", s.UnreadMsgs)
		fmt.Printf("index capacity: %d\n", s.IndexCapacity)
		fmt.Printf("cache bytes:    %d\n", s.CacheBytes)
		fmt.Printf("cache msgs:     %d\n", s.CacheMessages)
		fmt.Printf("flags:          0x%x\n", s.Flags)

		if statCmdArgs.Dump {
			fmt.Println()
			fmt.Print(hex.Dump(h.RawHeader()))
		}
		return nil
	},
}

func init() {
	statCmd.Flags().StringVar(&statCmdArgs.Path, "path", "", "ring file to inspect")
	statCmd.Flags().BoolVar(&statCmdArgs.Reset, "reset", false, "zero the cumulative counters after printing")
	statCmd.Flags().BoolVar(&statCmdArgs.Dump, "dump", false, "also hex-dump the raw control block")
	statCmd.MarkFlagRequired("path")
}
