// The main package for the statscrape executable.
package main

import (
	"github.com/statforge/statscrape/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
