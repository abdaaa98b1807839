// Command ask answers a plain-English question about the IoT data from the
// command line, using the same pipeline and configuration as the server.
//
// Usage:
//
//	go run ./scripts/ask "show critical alerts from yesterday"
//	go run ./scripts/ask --output json --detail "average temperature readings"
//	go run ./scripts/ask history --failed --limit 20
//	go run ./scripts/ask history --stats --since 24h
package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
