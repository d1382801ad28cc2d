// The main package for the bookfeed executable.
package main

import (
	"os"

	"github.com/JakeFAU/bookfeed/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
