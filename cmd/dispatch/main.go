// Command dispatch runs requests through the triage pipeline from the command
// line and inspects stored records.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
