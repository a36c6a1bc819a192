// Package main provides the portico CLI: open a database, run scripts,
// snapshot and restore it, and inspect build capabilities.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/gate"
	"github.com/porticolabs/portico/portico/storage"
)

// db is the global handle, initialized on startup for commands that
// need one.
var db *gate.DB

func main() {
	if err := rootCmd.Execute(); err != nil {
		if d := portico.AsDiagnostic(err); d != nil {
			fmt.Fprintln(os.Stderr, renderDiagnostic(d))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "portico",
	Short: "Portico is an embeddable relational-graph database",
	Long: `Portico stores relations in an embedded key-value backend and runs
Datalog-style scripts against them. The same database file can be
queried here, snapshotted, and restored.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  openHandle,
	PersistentPostRunE: closeHandle,
}

func init() {
	rootCmd.PersistentFlags().String("db", "portico.db", "path to the database")
	rootCmd.PersistentFlags().String("engine", string(storage.FileBackend()), "storage backend (mem or the compiled file backend)")
	rootCmd.PersistentFlags().Bool("readonly", false, "open the database read-only")
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("engine", rootCmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("readonly", rootCmd.PersistentFlags().Lookup("readonly"))
	viper.SetEnvPrefix("PORTICO")
	viper.AutomaticEnv()

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(capabilitiesCmd)
}

// openHandle opens the database for commands that operate on one.
func openHandle(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "capabilities", "help", "completion":
		return nil
	}
	kind := storage.BackendKind(viper.GetString("engine"))
	path := viper.GetString("db")
	if kind == storage.KindMem {
		path = ""
	}
	cfg := &gate.Config{
		ReadOnly:        viper.GetBool("readonly"),
		CreateIfMissing: true,
	}
	handle, err := gate.Open(kind, path, cfg)
	if err != nil {
		return err
	}
	db = handle
	return nil
}

func closeHandle(cmd *cobra.Command, args []string) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
