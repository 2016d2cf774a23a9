package main

import (
	"os"

	"github.com/retail-analytics/rfm-segments/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
