package main

import (
	"os"

	"github.com/noah-isme/workshop-scheduler/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitError)
	}
}
