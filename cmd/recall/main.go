package main

import (
	"os"

	"github.com/scrypster/recall/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
