// Command policyqa is the CLI entry point for the policy QA/search engine.
package main

import (
	"fmt"
	"os"

	"github.com/policyqa/policyqa/cmd/policyqa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
