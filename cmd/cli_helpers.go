package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nextlevelbuilder/mcptick/internal/config"
	"github.com/nextlevelbuilder/mcptick/internal/store"
)

// openStore opens the configured database directly, without the service
// running. Inspection commands operate on the same rows the service does.
func openStore() store.Store {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return st
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fmtInstant(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.DateTime)
}
