// Command havoice is a wake-word driven voice assistant for Home Assistant.
//
// Usage:
//
//	havoice [flags] <command> [args]
//
// Commands:
//
//	listen    - run the voice session until interrupted
//	gateway   - serve the classification and Home Assistant gateway
//	say       - speak text through the configured voice
//	classify  - classify one utterance
//	config    - inspect the effective configuration
package main

import (
	"fmt"
	"os"

	"havoice/cmd/havoice/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
