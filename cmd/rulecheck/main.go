package main

import (
	"os"

	"github.com/dshills/rulecheck/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
