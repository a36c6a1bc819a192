//go:build portico_fetch

package engine

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/porticolabs/portico/portico"
)

func init() {
	RegisterFixedRule("fetch_text", fetchText)
	registerExtension("fetch")
}

var fetchClient = &http.Client{Timeout: 30 * time.Second}

// fetchText retrieves the body of each URL in the input relation and
// yields [url, status, body] rows. The input must have a single column
// of URL strings. Network failures surface as errors rather than rows
// so a query never silently loses a fetch.
func fetchText(input *Relation, args []portico.Value) (*Relation, error) {
	if len(input.Columns) != 1 {
		return nil, fmt.Errorf("fetch_text requires a single-column relation of URLs, got %d columns", len(input.Columns))
	}
	if len(args) != 0 {
		return nil, fmt.Errorf("fetch_text takes no arguments, got %d", len(args))
	}
	out := NewRelation("url", "status", "body")
	for _, row := range input.Rows {
		url, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("fetch_text URL must be a string, got %T", row[0])
		}
		resp, err := fetchClient.Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", url, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		out.Append([]portico.Value{url, int64(resp.StatusCode), string(body)})
	}
	return out, nil
}
