package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/unison/internal/core/model"
)

var flagRelatedType string

var relatedCmd = &cobra.Command{
	Use:   "related <guid>",
	Short: "Resolve the entities related to an entity",
	Long: `Related follows the resolved relationships of guid and prints the
resolved entity at the far end of each, once per entity.

Example:
  unisonctl related 7f3c... --type OwnsOneThing --related-type Thing`,
	Args: cobra.ExactArgs(1),
	RunE: runRelated,
}

func init() {
	addRelationshipFlags(relatedCmd)
	relatedCmd.Flags().StringVar(&flagRelatedType, "related-type", "", "fail unless every related entity has this type")
}

func runRelated(cmd *cobra.Command, args []string) error {
	start, req, err := relationshipRequest(cmd, args[0])
	if err != nil {
		return err
	}
	req.RelatedTypeName = flagRelatedType

	related, err := unison.Engine.ResolveRelatedEntities(cmd.Context(), start, req)
	if err != nil {
		return fmt.Errorf("resolve related entities: %w", err)
	}
	if related == nil {
		related = []*model.EntityInstance{}
	}
	return printJSON(cmd, related)
}
