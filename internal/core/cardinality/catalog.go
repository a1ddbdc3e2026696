package cardinality

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/unison/internal/config"
	"github.com/agenthands/unison/internal/core/model"
)

// Catalog answers cardinality questions about relationship types. An
// unknown type is reported with model.KindNotFound.
type Catalog interface {
	Cardinality(ctx context.Context, typeName string) (model.RelationshipTypeCardinality, error)
}

type StaticCatalog struct {
	types map[string]model.RelationshipTypeCardinality
}

// NewStaticCatalog builds a catalog from defs. The duplicate bookkeeping link
// types are always present and always multi-link.
func NewStaticCatalog(defs ...model.RelationshipTypeCardinality) *StaticCatalog {
	c := &StaticCatalog{types: make(map[string]model.RelationshipTypeCardinality, len(defs)+2)}
	for _, name := range []string{model.PeerDuplicateLinkType, model.ConsolidatedDuplicateLinkType} {
		c.types[name] = model.RelationshipTypeCardinality{
			TypeName:  name,
			MultiLink: true,
			End1:      model.AnyNumber,
			End2:      model.AnyNumber,
		}
	}
	for _, d := range defs {
		c.types[d.TypeName] = d
	}
	return c
}

func (c *StaticCatalog) Cardinality(_ context.Context, typeName string) (model.RelationshipTypeCardinality, error) {
	card, ok := c.types[typeName]
	if !ok {
		return model.RelationshipTypeCardinality{}, model.NotFoundError("relationship type cardinality", typeName)
	}
	return card, nil
}

// CatalogFromConfig converts the [[relationship_types]] section.
func CatalogFromConfig(types []config.RelationshipTypeConfig) (*StaticCatalog, error) {
	defs := make([]model.RelationshipTypeCardinality, 0, len(types))
	for _, t := range types {
		if t.Name == "" {
			return nil, fmt.Errorf("relationship type without a name")
		}
		end1, err := parseCardinality(t.End1Cardinality)
		if err != nil {
			return nil, fmt.Errorf("relationship type %s end1: %w", t.Name, err)
		}
		end2, err := parseCardinality(t.End2Cardinality)
		if err != nil {
			return nil, fmt.Errorf("relationship type %s end2: %w", t.Name, err)
		}
		defs = append(defs, model.RelationshipTypeCardinality{
			TypeName:    t.Name,
			MultiLink:   t.MultiLink,
			End1:        end1,
			End2:        end2,
			Directional: t.End1Attribute != t.End2Attribute,
		})
	}
	return NewStaticCatalog(defs...), nil
}

func parseCardinality(s string) (model.Cardinality, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(model.AnyNumber):
		return model.AnyNumber, nil
	case string(model.AtMostOne):
		return model.AtMostOne, nil
	}
	return "", fmt.Errorf("unknown cardinality %q", s)
}
