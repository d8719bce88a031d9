package main

import (
	"os"

	"github.com/dnys1/mcp-docs/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
