// Command lensd serves the Lens community memory log.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lensd:", err)
		os.Exit(1)
	}
}
