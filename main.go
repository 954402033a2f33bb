// The main package for the voter-enricher executable.
package main

import (
	"os"

	"github.com/JakeFAU/voter-enrichment/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
