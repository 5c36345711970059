package main

import (
	"os"

	"github.com/leppikallio/pai-opencode/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
