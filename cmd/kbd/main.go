package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/crmkb/internal/cli"
	"github.com/cloo-solutions/crmkb/internal/cli/kbd"
)

func main() {
	root := kbd.NewRootCmd()

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}

	if path, ok := cli.HelpJSONPath(args); ok {
		if err := cli.WriteSchema(os.Stdout, cli.FindTargetCommand(root, path)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
