// Command yogisync mirrors studio booking mail into a calendar.
package main

import (
	"os"

	"github.com/roach88/yogisync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
