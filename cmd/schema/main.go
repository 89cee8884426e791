// Command schema regenerates pkg/config/schema.json from the config structs
package main

import (
	"encoding/json"
	"os"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/podscope/pkg/config"
)

func main() {
	out := "schema.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	schema, err := config.GenerateSchema()
	if err != nil {
		lgr.Fatalf("can't generate config schema: %v", err)
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		lgr.Fatalf("can't marshal config schema: %v", err)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil { //nolint:gosec // schema is public
		lgr.Fatalf("can't write %s: %v", out, err)
	}
	lgr.Printf("[INFO] config schema written to %s", out)
}
