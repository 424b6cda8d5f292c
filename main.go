// The main package for the datasheetd executable.
package main

import (
	"github.com/JakeFAU/datasheet-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
