package main

import (
	"os"

	"indyforge.dev/forge/cmd/indyforge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
