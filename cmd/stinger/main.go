package main

import (
	"os"

	"github.com/stingersec/stinger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
