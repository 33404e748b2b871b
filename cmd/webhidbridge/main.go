// Command webhidbridge exposes local USB/Bluetooth HID peripherals to
// browser clients over HTTP and WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/kndysfm/webhidbridge/internal/cliapp"
)

var version = "dev"

func main() {
	root := cliapp.New(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "webhidbridge: %v\n", err)
		os.Exit(1)
	}
}
