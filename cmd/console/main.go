// Command console is the terminal front end of the auto-trading backend.
package main

import (
	"os"

	"autotrade-console/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
