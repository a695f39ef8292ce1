package main

import (
	"os"

	"github.com/telhawk-systems/centrallog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
