package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	shr "github.com/paultag/go-shr"
	"github.com/paultag/go-shr/internal/logging"
)

var bridgeCmdArgs struct {
	From    string
	To      string
	BufSize int
	Verbose bool
}

// bridgeCmd copies messages from one ring into another, one at a time,
// blocking on the destination when it's full. It gives SelectableFD a
// runnable exercise outside of tests (Ctl is not used here): the source
// is opened non-blocking and its
// SelectableFD is what a caller embedding shr in a larger event loop
// would multiplex on (here, a direct poll) instead of calling Read in a
// spin loop.
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Copy messages from one ring into another",
	RunE: func(cmd *cobra.Command, args []string) error {
		level := zapcore.InfoLevel
		if bridgeCmdArgs.Verbose {
			level = zapcore.DebugLevel
		}
		log, err := logging.Init(logging.Config{Level: level})
		if err != nil {
			return err
		}
		defer log.Sync()

		src, err := shr.Open(bridgeCmdArgs.From, shr.OpenRDOnly|shr.OpenNonblock, shr.WithLogger(log))
		if err != nil {
			return fmt.Errorf("bridge: open source: %w", err)
		}
		defer src.Close()

		dst, err := shr.Open(bridgeCmdArgs.To, shr.OpenWROnly, shr.WithLogger(log))
		if err != nil {
			return fmt.Errorf("bridge: open destination: %w", err)
		}
		defer dst.Close()

		fd, err := src.SelectableFD()
		if err != nil {
			return fmt.Errorf("bridge: source not selectable: %w", err)
		}
		pollFDs := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

		buf := make([]byte, bridgeCmdArgs.BufSize)
		for {
			n, err := src.Read(buf)
			if err != nil {
				if errors.Is(err, shr.ErrClosed) {
					return nil
				}
				if errors.Is(err, shr.ErrWouldBlock) {
					if _, err := unix.Poll(pollFDs, -1); err != nil && err != unix.EINTR {
						return fmt.Errorf("bridge: poll: %w", err)
					}
					continue
				}
				return fmt.Errorf("bridge: read: %w", err)
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("bridge: write: %w", err)
			}
			log.Debugw("bridged message", "bytes", n)
		}
	},
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeCmdArgs.From, "from", "", "source ring file")
	bridgeCmd.Flags().StringVar(&bridgeCmdArgs.To, "to", "", "destination ring file")
	bridgeCmd.Flags().IntVar(&bridgeCmdArgs.BufSize, "buf-size", 64*1024, "read buffer size in bytes")
	bridgeCmd.Flags().BoolVar(&bridgeCmdArgs.Verbose, "verbose", false, "enable debug logging")
	bridgeCmd.MarkFlagRequired("from")
	bridgeCmd.MarkFlagRequired("to")
}
