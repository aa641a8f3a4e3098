package main

import (
	"os"
)

func main() {
	root := newRootCmd()
	register(root,
		newServeCmd(),
		newWorkerCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newSettingsCmd(),
	)

	if err := root.Execute(); err != nil {
		out.Errorf("%s\n", err.Error())
		os.Exit(1)
	}
}
