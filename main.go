// The main package for the pricewatch executable.
package main

import (
	"github.com/JakeFAU/pricewatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
