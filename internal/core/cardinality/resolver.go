// Package cardinality collapses the relationships gathered from every member
// of a duplicate cluster into the set that would exist if the cluster were a
// single entity.
package cardinality

import (
	"context"
	"time"

	"github.com/agenthands/unison/internal/core/model"
	"github.com/agenthands/unison/internal/diag"
)

type Options struct {
	EffectiveTime *time.Time
	// ForDuplicateProcessing keeps bookkeeping links and skips cardinality
	// enforcement.
	ForDuplicateProcessing bool
}

// Resolver is built for one request and discarded afterwards. It is not safe
// for concurrent use.
type Resolver struct {
	catalog Catalog
	sink    diag.Sink
	anchor  model.EntityProxy
	opts    Options

	buckets map[string][]*model.RelationshipInstance
	order   []string
}

// NewResolver returns a resolver whose results are expressed relative to
// anchor, normally the proxy of the entity the caller asked about. An empty
// anchor GUID disables cardinality enforcement.
func NewResolver(catalog Catalog, sink diag.Sink, anchor model.EntityProxy, opts Options) *Resolver {
	if sink == nil {
		sink = diag.Nop{}
	}
	return &Resolver{
		catalog: catalog,
		sink:    sink,
		anchor:  anchor,
		opts:    opts,
		buckets: make(map[string][]*model.RelationshipInstance),
	}
}

// Add ingests the relationships retrieved for one cluster member. Endpoints
// that reference the member are rewritten to the anchor on copies; the input
// is never modified.
func (r *Resolver) Add(memberGUID string, rels []*model.RelationshipInstance) {
	for _, rel := range rels {
		if rel == nil {
			continue
		}
		if !r.opts.ForDuplicateProcessing && model.IsDuplicateBookkeeping(rel.TypeName) {
			continue
		}
		if !rel.EffectiveAt(r.opts.EffectiveTime) {
			continue
		}
		if r.anchor.GUID != "" && memberGUID != r.anchor.GUID {
			rel = r.rewrite(memberGUID, rel)
		}
		if _, ok := r.buckets[rel.TypeName]; !ok {
			r.order = append(r.order, rel.TypeName)
		}
		r.buckets[rel.TypeName] = append(r.buckets[rel.TypeName], rel)
	}
}

func (r *Resolver) rewrite(memberGUID string, rel *model.RelationshipInstance) *model.RelationshipInstance {
	if rel.End1.GUID != memberGUID && rel.End2.GUID != memberGUID {
		return rel
	}
	out := rel.Copy()
	if out.End1.GUID == memberGUID {
		out.End1 = r.anchor
	}
	if out.End2.GUID == memberGUID {
		out.End2 = r.anchor
	}
	return out
}

// Results returns the resolved relationships of typeName (every type when
// empty) in ingestion order, restricted to those attached to the anchor at
// attachmentEnd.
func (r *Resolver) Results(ctx context.Context, typeName string, attachmentEnd int) ([]*model.RelationshipInstance, error) {
	types := r.order
	if typeName != "" {
		types = []string{typeName}
	}

	var out []*model.RelationshipInstance
	for _, t := range types {
		bucket, ok := r.buckets[t]
		if !ok {
			continue
		}
		resolved, err := r.resolveType(ctx, t, bucket, attachmentEnd)
		if err != nil {
			return nil, err
		}
		out = append(out, r.attachedAt(resolved, attachmentEnd)...)
	}
	return out, nil
}

func (r *Resolver) resolveType(ctx context.Context, typeName string, bucket []*model.RelationshipInstance, attachmentEnd int) ([]*model.RelationshipInstance, error) {
	rels := dedupeByGUID(bucket)
	if !r.opts.ForDuplicateProcessing && r.anchor.GUID != "" {
		var err error
		if rels, err = r.enforce(ctx, typeName, rels, attachmentEnd); err != nil {
			return nil, err
		}
	}
	r.report(ctx, typeName, bucket, rels)
	return rels, nil
}

// enforce applies the relationship type's cardinality. The end1 pass keeps
// one relationship per end2 entity and the end2 pass one per end1 entity.
// For symmetric types the two passes share their key map, so a link seen
// once in each orientation collapses to one.
func (r *Resolver) enforce(ctx context.Context, typeName string, rels []*model.RelationshipInstance, attachmentEnd int) ([]*model.RelationshipInstance, error) {
	card, err := r.catalog.Cardinality(ctx, typeName)
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			return rels, nil
		}
		return nil, err
	}
	if card.MultiLink {
		return rels, nil
	}

	rels = collapseUniLink(rels)
	if card.End1 != model.AtMostOne && card.End2 != model.AtMostOne {
		return rels, nil
	}

	seen := newKeyedList()
	if card.End1 == model.AtMostOne && attachmentEnd != model.AttachEnd2 {
		for _, rel := range rels {
			seen.keepLater(rel.End2.GUID, rel)
		}
		rels = seen.list()
	}
	if card.Directional {
		seen = newKeyedList()
	}
	if card.End2 == model.AtMostOne && attachmentEnd != model.AttachEnd1 {
		for _, rel := range rels {
			seen.keepLater(rel.End1.GUID, rel)
		}
		rels = seen.list()
	}

	return dedupeByGUID(rels), nil
}

func (r *Resolver) attachedAt(rels []*model.RelationshipInstance, attachmentEnd int) []*model.RelationshipInstance {
	if attachmentEnd == model.AttachAnyEnd || r.anchor.GUID == "" {
		return rels
	}
	out := make([]*model.RelationshipInstance, 0, len(rels))
	for _, rel := range rels {
		switch {
		case attachmentEnd == model.AttachEnd1 && rel.End1.GUID == r.anchor.GUID:
			out = append(out, rel)
		case attachmentEnd == model.AttachEnd2 && rel.End2.GUID == r.anchor.GUID:
			out = append(out, rel)
		}
	}
	return out
}

func (r *Resolver) report(ctx context.Context, typeName string, before, after []*model.RelationshipInstance) {
	if len(before) == len(after) {
		return
	}
	diag.RelationshipsRemoved.WithLabelValues(typeName).Add(float64(len(before) - len(after)))
	r.sink.Log(ctx, diag.EventRelationshipsCollapsed, map[string]interface{}{
		"type_name":      typeName,
		"anchor_guid":    r.anchor.GUID,
		"original_count": len(before),
		"final_count":    len(after),
		"original_guids": guids(before),
		"final_guids":    guids(after),
	})
}

func guids(rels []*model.RelationshipInstance) []string {
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = rel.GUID
	}
	return out
}
