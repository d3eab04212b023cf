package main

import (
	"os"

	"github.com/stemsi/exstem-cbt/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
