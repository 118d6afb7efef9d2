package main

import (
	"os"

	"github.com/curb-dev/curb/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
