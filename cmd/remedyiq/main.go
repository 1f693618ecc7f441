// RemedyIQ - AR System Log Analysis Service
//
// RemedyIQ ingests AR System server transaction logs, analyzes them for
// performance and stability signals, and serves the results over an
// HTTP API.
package main

import (
	"os"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
