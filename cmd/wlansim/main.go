// SPDX-License-Identifier: GPL-3.0-or-later

// Command wlansim runs wired and wireless LAN simulation scenarios.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wlansim: %s\n", err)
		os.Exit(1)
	}
}
