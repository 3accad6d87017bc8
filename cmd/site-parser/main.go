// Command site-parser is the CLI wrapper around the crawl engine: it
// resolves flags and config, runs one crawl, and prints the result as
// JSON on stdout.
package main

import (
	"os"

	"github.com/bk-ru/parser/internal/cli"
)

func main() {
	root := cli.NewRootCmd(os.Stdout, os.Stderr)
	os.Exit(cli.Execute(root, os.Stderr))
}
