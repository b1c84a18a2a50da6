package main

import (
	"os"

	"github.com/goodcoins/backend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
