package main

import (
	"os"
)

func main() {
	root := newRootCommand(newServeCommand(), newProbeCommand(), newPruneCommand())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
