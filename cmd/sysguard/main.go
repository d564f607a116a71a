package main

import (
	"os"

	"github.com/oversightlab/sysguard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
