package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agenthands/unison/internal/core"
	"github.com/agenthands/unison/internal/core/model"
)

var (
	flagType      string
	flagTypeGUID  string
	flagEnd       int
	flagStatuses  []string
	flagUnique    bool
	flagStartFrom int
	flagPageSize  int
)

var relationshipsCmd = &cobra.Command{
	Use:   "relationships <guid>",
	Short: "Resolve the relationships of an entity",
	Long: `Relationships prints the relationships of guid as if its whole duplicate
cluster were one entity. Relationships of types limited to one link per
end are collapsed to the most recently updated one.

Example:
  unisonctl relationships 7f3c... --type OwnsOneThing --end 1`,
	Args: cobra.ExactArgs(1),
	RunE: runRelationships,
}

func init() {
	addRelationshipFlags(relationshipsCmd)
	relationshipsCmd.Flags().BoolVar(&flagUnique, "unique", false, "fail unless at most one relationship remains")
}

func addRelationshipFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagType, "type", "", "relationship type name")
	cmd.Flags().StringVar(&flagTypeGUID, "type-guid", "", "relationship type GUID")
	cmd.Flags().IntVar(&flagEnd, "end", 0, "end the entity must be attached at: 0 (either), 1 or 2")
	cmd.Flags().StringSliceVar(&flagStatuses, "status", nil, "relationship statuses to read (default ACTIVE)")
	cmd.Flags().IntVar(&flagStartFrom, "start-from", 0, "offset into the resolved list")
	cmd.Flags().IntVar(&flagPageSize, "page-size", 0, "maximum number of results (0 for all)")
}

// relationshipRequest fetches the starting entity and builds the request
// from the flags.
func relationshipRequest(cmd *cobra.Command, guid string) (*model.EntityInstance, core.RelationshipRequest, error) {
	var req core.RelationshipRequest
	if flagEnd < model.AttachAnyEnd || flagEnd > model.AttachEnd2 {
		return nil, req, fmt.Errorf("--end must be 0, 1 or 2")
	}

	opts, err := engineOptions()
	if err != nil {
		return nil, req, err
	}
	req = core.RelationshipRequest{
		Options:       opts,
		TypeGUID:      flagTypeGUID,
		TypeName:      flagType,
		AttachmentEnd: flagEnd,
		StartFrom:     flagStartFrom,
		PageSize:      flagPageSize,
	}
	for _, st := range flagStatuses {
		req.Statuses = append(req.Statuses, model.InstanceStatus(strings.ToUpper(st)))
	}

	start, err := unison.Store.GetEntity(cmd.Context(), guid, opts.AsOfTime)
	if err != nil {
		return nil, req, fmt.Errorf("get entity: %w", err)
	}
	return start, req, nil
}

func runRelationships(cmd *cobra.Command, args []string) error {
	start, req, err := relationshipRequest(cmd, args[0])
	if err != nil {
		return err
	}

	if flagUnique {
		rel, err := unison.Engine.ResolveUniqueRelationship(cmd.Context(), start, req)
		if err != nil {
			return fmt.Errorf("resolve relationship: %w", err)
		}
		return printJSON(cmd, rel)
	}

	rels, err := unison.Engine.ResolveRelationships(cmd.Context(), start, req)
	if err != nil {
		return fmt.Errorf("resolve relationships: %w", err)
	}
	if rels == nil {
		rels = []*model.RelationshipInstance{}
	}
	return printJSON(cmd, rels)
}
