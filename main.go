package main

import (
	"os"

	"github.com/rmb938/franz-graphql-registry/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
