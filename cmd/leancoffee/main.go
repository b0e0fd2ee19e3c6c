package main

import (
	"os"

	"github.com/mcdev12/leancoffee/cmd/leancoffee/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
