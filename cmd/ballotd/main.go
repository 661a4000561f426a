// Command ballotd runs an anonymous election based on RSA blind
// signatures.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
