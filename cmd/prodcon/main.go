// Command prodcon moves files between two processes over a single-slot shared
// memory channel.
//
// Run "prodcon receive" in one process and "prodcon send FILE..." in another,
// both with the same --id. "prodcon inspect" and "prodcon purge" show and
// reset the channel's kernel objects.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
