package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenthands/unison/internal/driver"
)

var loadCmd = &cobra.Command{
	Use:   "load <fixture.json>",
	Short: "Load entities and relationships into the store",
	Long: `Load reads a JSON document with "entities", "proxies" and
"relationships" arrays and writes every record into the configured store,
replacing records with the same GUID.

Example:
  unisonctl load testdata/clusters.json`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}

	var f driver.Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	if err := unison.Loader.Load(cmd.Context(), &f); err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d entities, %d proxies, %d relationships\n",
		len(f.Entities), len(f.Proxies), len(f.Relationships))
	return nil
}
