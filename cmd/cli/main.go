package main

import (
	"os"

	"github.com/firerestore-dev/firerestore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
