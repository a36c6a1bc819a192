package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/gate"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive script session",
	Long:  `Repl opens an interactive session against the database. Each line is one script statement.`,
	RunE:  runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Portico Interactive Mode (%s) ===\n", db.Kind())
	fmt.Println("Commands:")
	fmt.Println("  .help    - Show help")
	fmt.Println("  .exit    - Exit")
	fmt.Println("  <script> - Run a statement")
	fmt.Println()

	mode := gate.ReadWrite
	if viper.GetBool("readonly") {
		mode = gate.ReadOnly
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue

		case line == ".exit":
			return nil

		case line == ".help":
			fmt.Println("Enter one statement per line:")
			fmt.Println("  :create rel {cols}")
			fmt.Println("  ?[cols] <- [[...]] :put rel {cols}")
			fmt.Println("  ?[cols] := *rel[terms]")
			fmt.Println("  ::relations, ::columns rel, ::remove rel")

		case strings.HasPrefix(line, "."):
			fmt.Println("Unknown command. Use .help for help.")

		default:
			rows, err := db.Run(line, nil, mode)
			if err != nil {
				if d := portico.AsDiagnostic(err); d != nil {
					fmt.Println(renderDiagnostic(d))
				} else {
					fmt.Printf("Execution error: %v\n", err)
				}
				continue
			}
			fmt.Println(renderRows(rows))
		}
	}
	return scanner.Err()
}
