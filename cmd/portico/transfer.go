package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/porticolabs/portico/portico/gate"
)

var exportCmd = &cobra.Command{
	Use:   "export <relation>...",
	Short: "Dump stored relations as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dump, err := db.ExportRelations(args)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load relations from a JSON dump produced by export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		// UseNumber keeps integer cells integral through the round trip.
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var data map[string]*gate.NamedRows
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("invalid dump file %q: %w", args[0], err)
		}
		if err := db.ImportRelations(data); err != nil {
			return err
		}
		fmt.Printf("Imported %d relation(s)\n", len(data))
		return nil
	},
}
