package main

import (
	"os"

	"github.com/moebius-network/moebius/keeper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
