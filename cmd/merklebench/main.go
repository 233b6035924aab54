// Command merklebench times mmr appends or smt updates over a range of
// indices against a persistent node store.
//
//	merklebench <mmr|smt> <store_path> <start_index> <end_index>
//	merklebench inspect <mmr|smt> <store_path>
package main

import (
	"fmt"
	"os"

	"github.com/datatrails/go-datatrails-common/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger.New("INFO")
	defer logger.OnExit()

	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
