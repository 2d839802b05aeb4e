package main

import (
	"os"

	"swipify/cmd/swipify/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
