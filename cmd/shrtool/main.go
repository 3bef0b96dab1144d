// Command shrtool creates, inspects, and bridges shr rings from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shrtool",
	Short: "Create, read, write and inspect shr rings",
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(bridgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
