package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/core/cardinality"
	"github.com/agenthands/unison/internal/core/cluster"
	"github.com/agenthands/unison/internal/core/model"
	"github.com/agenthands/unison/internal/diag"
	"github.com/agenthands/unison/internal/driver"
	"github.com/agenthands/unison/internal/tracing"
)

type Settings struct {
	ConsolidationThreshold int64
	PeerThreshold          int64
	PageSize               int
	MaxPages               int
}

// Engine presents a single logical view of entities that the store holds as
// known duplicates. It keeps no per-request state and may be shared between
// goroutines; every call builds its own walker and resolver.
type Engine struct {
	Store    driver.Store
	Catalog  cardinality.Catalog
	Sink     diag.Sink
	Logger   *zap.Logger
	Settings Settings
}

func NewEngine(store driver.Store, catalog cardinality.Catalog, sink diag.Sink, settings Settings, logger *zap.Logger) *Engine {
	if sink == nil {
		sink = diag.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:    store,
		Catalog:  catalog,
		Sink:     sink,
		Logger:   logger,
		Settings: settings,
	}
}

type Options struct {
	EffectiveTime          *time.Time
	AsOfTime               *time.Time
	ForLineage             bool
	ForDuplicateProcessing bool
	// ExpectedTypeName, when set, must match the type of the entity the
	// request starts from.
	ExpectedTypeName string
}

type RelationshipRequest struct {
	Options

	TypeGUID string
	TypeName string
	// AttachmentEnd is model.AttachAnyEnd, AttachEnd1 or AttachEnd2.
	AttachmentEnd int
	Statuses      []model.InstanceStatus

	// RelatedTypeName, when set, must match the type of every entity
	// returned by ResolveRelatedEntities.
	RelatedTypeName string

	StartFrom int
	PageSize  int
}

// ResolveEntityByGUID fetches the starting entity and resolves it. A missing
// starting entity fails the request.
func (e *Engine) ResolveEntityByGUID(ctx context.Context, guid string, opts Options) (*model.EntityInstance, error) {
	start, err := e.Store.GetEntity(ctx, guid, opts.AsOfTime)
	if err != nil {
		return nil, err
	}
	return e.ResolveEntity(ctx, start, opts)
}

// ResolveEntity returns the entity callers should see for start: the
// consolidated entity, a merge of the peer cluster, start itself, or nil when
// nothing in the cluster is visible.
func (e *Engine) ResolveEntity(ctx context.Context, start *model.EntityInstance, opts Options) (*model.EntityInstance, error) {
	ctx, span := tracing.Start(ctx, "unison.resolve_entity",
		attribute.String("unison.entity.guid", start.GUID),
		attribute.String("unison.entity.type", start.TypeName),
	)
	defer span.End()

	resolved, err := e.resolveEntity(ctx, start, opts)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	return resolved, nil
}

func (e *Engine) resolveEntity(ctx context.Context, start *model.EntityInstance, opts Options) (*model.EntityInstance, error) {
	if err := checkType("resolve entity", start, opts.ExpectedTypeName); err != nil {
		return nil, err
	}

	members, err := e.members(ctx, start, opts)
	if err != nil {
		return nil, err
	}

	switch len(members) {
	case 0:
		return nil, nil
	case 1:
		return withEffectiveClassifications(members[0], opts.EffectiveTime), nil
	}
	return mergeMembers(members, opts.EffectiveTime), nil
}

// ResolveRelationships returns the relationships of start's cluster as if
// the cluster were a single entity.
func (e *Engine) ResolveRelationships(ctx context.Context, start *model.EntityInstance, req RelationshipRequest) ([]*model.RelationshipInstance, error) {
	ctx, span := tracing.Start(ctx, "unison.resolve_relationships",
		attribute.String("unison.entity.guid", start.GUID),
		attribute.String("unison.relationship.type", req.TypeName),
		attribute.Int("unison.attachment_end", req.AttachmentEnd),
	)
	defer span.End()

	rels, _, err := e.relationships(ctx, start, req)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("unison.relationship.count", len(rels)))
	return page(rels, req.StartFrom, req.PageSize), nil
}

// ResolveUniqueRelationship is ResolveRelationships for relationship types
// where the caller expects at most one result.
func (e *Engine) ResolveUniqueRelationship(ctx context.Context, start *model.EntityInstance, req RelationshipRequest) (*model.RelationshipInstance, error) {
	req.StartFrom, req.PageSize = 0, 0
	rels, err := e.ResolveRelationships(ctx, start, req)
	if err != nil {
		return nil, err
	}
	switch len(rels) {
	case 0:
		return nil, nil
	case 1:
		return rels[0], nil
	}

	guids := make([]string, len(rels))
	for i, rel := range rels {
		guids[i] = rel.GUID
	}
	return nil, model.AmbiguousResultError("resolve unique relationship", guids)
}

// ResolveRelatedEntities resolves the entity at the far end of each resolved
// relationship. Entities reached through more than one relationship are
// returned once, in the order first reached.
func (e *Engine) ResolveRelatedEntities(ctx context.Context, start *model.EntityInstance, req RelationshipRequest) ([]*model.EntityInstance, error) {
	ctx, span := tracing.Start(ctx, "unison.resolve_related_entities",
		attribute.String("unison.entity.guid", start.GUID),
		attribute.String("unison.relationship.type", req.TypeName),
	)
	defer span.End()

	rels, anchors, err := e.relationships(ctx, start, req)
	if err != nil {
		fail(span, err)
		return nil, err
	}

	relatedOpts := req.Options
	relatedOpts.ExpectedTypeName = req.RelatedTypeName

	seen := make(map[string]bool)
	var related []*model.EntityInstance
	for _, rel := range rels {
		far := rel.End2
		if !anchors[rel.End1.GUID] {
			far = rel.End1
		}
		if anchors[far.GUID] || seen[far.GUID] {
			continue
		}
		seen[far.GUID] = true

		entity, err := e.Store.GetEntity(ctx, far.GUID, req.AsOfTime)
		if err != nil {
			if model.KindOf(err) == model.KindStoreUnavailable {
				fail(span, err)
				return nil, err
			}
			e.Logger.Warn("skipping related entity",
				zap.String("guid", far.GUID),
				zap.String("relationship_guid", rel.GUID),
				zap.Error(err))
			continue
		}

		resolved, err := e.resolveEntity(ctx, entity, relatedOpts)
		if err != nil {
			fail(span, err)
			return nil, err
		}
		if resolved == nil || anchors[resolved.GUID] {
			continue
		}
		if resolved.GUID != far.GUID {
			if seen[resolved.GUID] {
				continue
			}
			seen[resolved.GUID] = true
		}
		related = append(related, resolved)
	}
	return page(related, req.StartFrom, req.PageSize), nil
}

// relationships resolves the relationship list and also reports the GUIDs
// that belong to the starting entity's cluster.
func (e *Engine) relationships(ctx context.Context, start *model.EntityInstance, req RelationshipRequest) ([]*model.RelationshipInstance, map[string]bool, error) {
	if err := checkType("resolve relationships", start, req.ExpectedTypeName); err != nil {
		return nil, nil, err
	}

	members, err := e.members(ctx, start, req.Options)
	if err != nil {
		return nil, nil, err
	}

	switch len(members) {
	case 0:
		return nil, nil, nil
	case 1:
		rels, err := e.direct(ctx, members[0], req)
		return rels, map[string]bool{members[0].GUID: true}, err
	}

	anchors := map[string]bool{start.GUID: true}
	for _, m := range members {
		anchors[m.GUID] = true
	}
	rels, err := e.fanOut(ctx, start, members, req)
	return rels, anchors, err
}

// members runs the walker to completion. When the walk ends on a
// consolidated entity every peer yielded before it is dropped.
func (e *Engine) members(ctx context.Context, start *model.EntityInstance, opts Options) ([]*model.EntityInstance, error) {
	w := cluster.NewWalker(e.Store, start, cluster.Options{
		EffectiveTime:          opts.EffectiveTime,
		AsOfTime:               opts.AsOfTime,
		ForLineage:             opts.ForLineage,
		ForDuplicateProcessing: opts.ForDuplicateProcessing,
		ConsolidationThreshold: e.Settings.ConsolidationThreshold,
		PeerThreshold:          e.Settings.PeerThreshold,
		PageSize:               e.Settings.PageSize,
		MaxPages:               e.Settings.MaxPages,
	}, e.Sink, e.Logger)

	var members []*model.EntityInstance
	for {
		member, err := w.Next(ctx)
		if err != nil {
			return nil, err
		}
		if member == nil {
			break
		}
		members = append(members, member)
	}

	if skipped := w.Skipped(); len(skipped) > 0 {
		trace.SpanFromContext(ctx).SetAttributes(attribute.StringSlice("unison.cluster.skipped", skipped))
		e.Sink.Log(ctx, diag.EventClusterIncomplete, map[string]interface{}{
			"start":   start.GUID,
			"skipped": skipped,
			"members": len(members),
		})
	}

	if w.Consolidated() && len(members) > 0 {
		return members[len(members)-1:], nil
	}
	return members, nil
}

// direct returns the relationships of an entity that has no cluster.
func (e *Engine) direct(ctx context.Context, entity *model.EntityInstance, req RelationshipRequest) ([]*model.RelationshipInstance, error) {
	rels, err := driver.CollectRelationships(ctx, e.Store, e.query(entity.GUID, req), e.Settings.MaxPages)
	if err != nil {
		return nil, err
	}

	out := make([]*model.RelationshipInstance, 0, len(rels))
	for _, rel := range rels {
		if req.TypeName != "" && rel.TypeName != req.TypeName {
			return nil, model.TypeMismatchError("resolve relationships", rel.GUID, req.TypeName, rel.TypeName)
		}
		if !req.ForDuplicateProcessing && model.IsDuplicateBookkeeping(rel.TypeName) {
			continue
		}
		if !rel.EffectiveAt(req.EffectiveTime) {
			continue
		}
		end := rel.EndOf(entity.GUID)
		if end == 0 {
			e.Logger.Warn("relationship does not reference its entity",
				zap.String("guid", entity.GUID),
				zap.String("relationship_guid", rel.GUID))
			continue
		}
		if req.AttachmentEnd != model.AttachAnyEnd && end != req.AttachmentEnd {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// fanOut gathers the relationships of every member and lets the cardinality
// resolver collapse them around start. A member whose relationships cannot
// be read contributes nothing unless the store itself is unavailable.
func (e *Engine) fanOut(ctx context.Context, start *model.EntityInstance, members []*model.EntityInstance, req RelationshipRequest) ([]*model.RelationshipInstance, error) {
	resolver := cardinality.NewResolver(e.Catalog, e.Sink, start.Proxy(), cardinality.Options{
		EffectiveTime:          req.EffectiveTime,
		ForDuplicateProcessing: req.ForDuplicateProcessing,
	})

	for _, m := range members {
		rels, err := driver.CollectRelationships(ctx, e.Store, e.query(m.GUID, req), e.Settings.MaxPages)
		if err != nil {
			if model.KindOf(err) == model.KindStoreUnavailable {
				return nil, err
			}
			e.Logger.Warn("failed to fetch relationships of cluster member",
				zap.String("guid", m.GUID),
				zap.String("start_guid", start.GUID),
				zap.Error(err))
			diag.MembersSkipped.WithLabelValues("relationship_fetch").Inc()
			e.Sink.Log(ctx, diag.EventMemberFetchFailed, map[string]interface{}{
				"guid":       m.GUID,
				"start_guid": start.GUID,
				"error":      err.Error(),
			})
			continue
		}
		for _, rel := range rels {
			if req.TypeName != "" && rel.TypeName != req.TypeName {
				return nil, model.TypeMismatchError("resolve relationships", rel.GUID, req.TypeName, rel.TypeName)
			}
		}
		resolver.Add(m.GUID, rels)
	}

	return resolver.Results(ctx, req.TypeName, req.AttachmentEnd)
}

func (e *Engine) query(guid string, req RelationshipRequest) driver.RelationshipQuery {
	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = []model.InstanceStatus{model.StatusActive}
	}
	return driver.RelationshipQuery{
		EntityGUID: guid,
		TypeGUID:   req.TypeGUID,
		TypeName:   req.TypeName,
		Statuses:   statuses,
		AsOfTime:   req.AsOfTime,
		PageSize:   e.Settings.PageSize,
	}
}

func checkType(op string, e *model.EntityInstance, expected string) error {
	if expected != "" && e.TypeName != expected {
		return model.TypeMismatchError(op, e.GUID, expected, e.TypeName)
	}
	return nil
}

func page[T any](items []T, from, size int) []T {
	if from <= 0 && size <= 0 {
		return items
	}
	if from >= len(items) {
		return nil
	}
	if from < 0 {
		from = 0
	}
	end := len(items)
	if size > 0 && from+size < end {
		end = from + size
	}
	return items[from:end]
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
