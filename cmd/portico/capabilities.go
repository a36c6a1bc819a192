package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/porticolabs/portico/portico/gate"
)

var capsJSON bool

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Show what this build of portico can do",
	RunE: func(cmd *cobra.Command, args []string) error {
		caps := gate.Capabilities()
		if capsJSON {
			out, err := json.MarshalIndent(caps, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		fmt.Printf("File backend: %s\n", caps.BackendKind)
		fmt.Printf("Backends:     %v\n", caps.Backends)
		if len(caps.Features) == 0 {
			fmt.Println("Features:     (none)")
		} else {
			fmt.Printf("Features:     %v\n", caps.Features)
		}
		return nil
	},
}

func init() {
	capabilitiesCmd.Flags().BoolVar(&capsJSON, "json", false, "emit capabilities as JSON")
}
