package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var entityCmd = &cobra.Command{
	Use:   "entity <guid>",
	Short: "Resolve an entity",
	Long: `Entity prints the entity callers see for guid: the consolidated entity
when one supersedes it, the merge of its peer duplicates, or the entity
itself.

Example:
  unisonctl entity 7f3c...
  unisonctl entity 7f3c... --effective-time 2024-01-01T00:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runEntity,
}

func runEntity(cmd *cobra.Command, args []string) error {
	opts, err := engineOptions()
	if err != nil {
		return err
	}

	entity, err := unison.Engine.ResolveEntityByGUID(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("resolve entity: %w", err)
	}
	if entity == nil {
		return fmt.Errorf("entity %q is not visible", args[0])
	}
	return printJSON(cmd, entity)
}
