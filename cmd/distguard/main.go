// Command distguard evaluates dnsdist configurations against policy packages.
package main

import (
	"os"

	"github.com/distguard/distguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
