// SPDX-License-Identifier: MIT

// Command raidbot runs the raid signup bot.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
