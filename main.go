// Command hubspoke plans, writes and refines content hubs with a team of
// LLM agents whose behaviour evolves from review feedback.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
