package main

import (
	"os"

	"github.com/solatis/oasconform/cmd/oasconform/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
