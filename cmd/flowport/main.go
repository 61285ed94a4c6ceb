package main

import (
	"os"

	"github.com/flowport/flowport/cmd/flowport/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
