package main

import (
	_ "time/tzdata"

	"github.com/coder/opsdash/cli"
)

func main() {
	var rootCmd cli.RootCmd
	rootCmd.Main(rootCmd.Subcommands())
}
