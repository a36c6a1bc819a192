package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/porticolabs/portico/portico/gate"
)

var queryParams []string

var queryCmd = &cobra.Command{
	Use:   "query <script>",
	Short: "Run a single script statement",
	Long: `Query runs one script statement against the database and prints the
result rows as a table.

Parameters are passed as name=json pairs and referenced as $name:

  portico query -p who='"alice"' '?[v] := *friends[$who, v]'
  portico query ':create friends {from, to}'`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringArrayVarP(&queryParams, "param", "p", nil, "query parameter as name=json (repeatable)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	params, err := parseParams(queryParams)
	if err != nil {
		return err
	}

	mode := gate.ReadWrite
	if viper.GetBool("readonly") {
		mode = gate.ReadOnly
	}

	rows, err := db.Run(args[0], params, mode)
	if err != nil {
		return err
	}
	fmt.Println(renderRows(rows))
	return nil
}

// parseParams decodes name=json pairs. Numbers decode as json.Number so
// integer parameters stay integers through the gateway.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("parameter %q must be name=json", pair)
		}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("parameter %q: invalid JSON value: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}
