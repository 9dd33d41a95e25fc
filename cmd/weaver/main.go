// Command weaver is the terminal client of Lucid Weaver.
package main

import (
	"fmt"
	"os"

	"github.com/zhouzirui/lucid-weaver/backend/cmd/weaver/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
