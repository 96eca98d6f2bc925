// Package main is the entry point for the ppexec binary.
package main

import (
	"os"

	cli "ppexec/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
