package main

import (
	"fmt"
	"os"

	"github.com/7p-education/platform/internal/ops"
)

func main() {
	if err := ops.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
