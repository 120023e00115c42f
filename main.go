package main

import (
	"fmt"
	"os"

	"github.com/kornnell/hermit-analyze/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hermit-analyze:", err)
		os.Exit(1)
	}
}
