// Package main is the entry point for the rosie CLI.
//
// All logic lives in the commands package.
package main

import (
	"os"

	"github.com/JNZader/rosie/cmd/rosie/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
