package driver

import (
	"context"
	"fmt"

	"github.com/agenthands/unison/internal/core/model"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 1000
)

// CollectRelationships reads every page of q. Pages are requested until the
// store clears RelationshipPage.More; maxPages bounds a store that never does.
func CollectRelationships(ctx context.Context, s Store, q RelationshipQuery, maxPages int) ([]*model.RelationshipInstance, error) {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var all []*model.RelationshipInstance
	for page := 0; page < maxPages; page++ {
		res, err := s.GetRelationshipsForEntity(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Relationships...)
		if !res.More {
			return all, nil
		}
		q.From += q.PageSize
	}
	return nil, fmt.Errorf("relationships for %s exceeded %d pages", q.EntityGUID, maxPages)
}
