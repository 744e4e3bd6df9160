// Command cardflow runs and calls the cardflow processors.
package main

import (
	"fmt"
	"os"

	"github.com/vnykmshr/cardflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
