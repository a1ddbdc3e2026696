// Package cluster walks the duplicate cluster of an entity: either the
// consolidated entity that supersedes it, or the transitive closure of its
// peer-duplicate links.
package cluster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/core/model"
	"github.com/agenthands/unison/internal/diag"
	"github.com/agenthands/unison/internal/driver"
)

type Options struct {
	EffectiveTime *time.Time
	AsOfTime      *time.Time
	ForLineage    bool
	// ForDuplicateProcessing yields the starting entity alone.
	ForDuplicateProcessing bool

	// ConsolidationThreshold is the minimum statusIdentifier of a
	// ConsolidatedDuplicate classification for the consolidated entity to
	// replace the cluster.
	ConsolidationThreshold int64
	// PeerThreshold is the minimum statusIdentifier of a PeerDuplicateLink
	// for the peer to join the cluster.
	PeerThreshold int64

	PageSize int
	MaxPages int
}

// Walker yields cluster members one at a time. It is built per request,
// cannot be restarted and is not safe for concurrent use.
type Walker struct {
	store  driver.Store
	sink   diag.Sink
	logger *zap.Logger
	opts   Options

	stack   []*model.EntityInstance
	visited map[string]bool
	queued  map[string]bool

	pending      *model.EntityInstance
	done         bool
	consolidated bool
	skipped      []string
}

func NewWalker(store driver.Store, start *model.EntityInstance, opts Options, sink diag.Sink, logger *zap.Logger) *Walker {
	if sink == nil {
		sink = diag.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		store:   store,
		sink:    sink,
		logger:  logger,
		opts:    opts,
		stack:   []*model.EntityInstance{start},
		visited: make(map[string]bool),
		queued:  map[string]bool{start.GUID: true},
	}
}

// HasMore reports whether Next will return another member. It may read from
// the store to find out.
func (w *Walker) HasMore(ctx context.Context) (bool, error) {
	if w.pending != nil {
		return true, nil
	}
	if w.done {
		return false, nil
	}

	next, err := w.advance(ctx)
	if err != nil {
		w.finish()
		return false, err
	}
	if next == nil {
		w.finish()
		return false, nil
	}
	w.pending = next
	return true, nil
}

// Next returns the next member, or nil once the cluster is exhausted.
func (w *Walker) Next(ctx context.Context) (*model.EntityInstance, error) {
	ok, err := w.HasMore(ctx)
	if err != nil || !ok {
		return nil, err
	}
	next := w.pending
	w.pending = nil
	return next, nil
}

// Consolidated reports whether the walk ended on a consolidated entity. The
// last member returned is then the only valid representative of the
// cluster.
func (w *Walker) Consolidated() bool {
	return w.consolidated
}

// Skipped returns the GUIDs of linked entities the walk could not read.
func (w *Walker) Skipped() []string {
	return append([]string(nil), w.skipped...)
}

func (w *Walker) finish() {
	if !w.done {
		w.done = true
		diag.ClusterSize.Observe(float64(len(w.visited)))
	}
}

func (w *Walker) advance(ctx context.Context) (*model.EntityInstance, error) {
	for len(w.stack) > 0 {
		candidate := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		if w.visited[candidate.GUID] {
			continue
		}
		w.visited[candidate.GUID] = true

		_, duplicated := candidate.Classification(model.KnownDuplicateClassification, w.opts.EffectiveTime)
		if w.opts.ForDuplicateProcessing || !duplicated {
			if w.visible(candidate) {
				return candidate, nil
			}
			continue
		}

		consolidated, err := w.consolidatedEntity(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if consolidated != nil {
			w.stack = nil
			w.consolidated = true
			return consolidated, nil
		}

		if err := w.pushPeers(ctx, candidate); err != nil {
			return nil, err
		}
		if w.visible(candidate) {
			return candidate, nil
		}
	}
	return nil, nil
}

func (w *Walker) visible(e *model.EntityInstance) bool {
	if Visible(e, w.opts.EffectiveTime, w.opts.ForLineage) {
		return true
	}
	diag.MembersSkipped.WithLabelValues("not_visible").Inc()
	return false
}

// Visible reports whether e may be shown: it must be effective at
// effectiveTime and, unless forLineage, carry no active Memento.
func Visible(e *model.EntityInstance, effectiveTime *time.Time, forLineage bool) bool {
	if !e.EffectiveAt(effectiveTime) {
		return false
	}
	if !forLineage {
		if _, ok := e.Classification(model.MementoClassification, effectiveTime); ok {
			return false
		}
	}
	return true
}

// consolidatedEntity returns the consolidated entity linked to candidate if
// its consolidation status has reached the threshold and it is visible.
func (w *Walker) consolidatedEntity(ctx context.Context, candidate *model.EntityInstance) (*model.EntityInstance, error) {
	links, err := w.links(ctx, candidate.GUID, model.ConsolidatedDuplicateLinkType)
	if err != nil {
		return nil, w.tolerate(ctx, candidate.GUID, "consolidated_lookup", err)
	}

	for _, link := range links {
		if !link.EffectiveAt(w.opts.EffectiveTime) {
			continue
		}
		far, ok := link.Counterpart(candidate.GUID)
		if !ok || far.GUID == candidate.GUID {
			continue
		}

		entity, err := w.store.GetEntity(ctx, far.GUID, w.opts.AsOfTime)
		if err != nil {
			if err := w.tolerate(ctx, far.GUID, "consolidated_fetch", err); err != nil {
				return nil, err
			}
			continue
		}

		c, ok := entity.Classification(model.ConsolidatedDuplicateClassification, w.opts.EffectiveTime)
		if !ok {
			w.ignoreConsolidated(ctx, candidate.GUID, entity.GUID, "unclassified")
			continue
		}
		status, _ := c.Properties.Int(model.StatusIdentifierProperty)
		if status < w.opts.ConsolidationThreshold {
			w.ignoreConsolidated(ctx, candidate.GUID, entity.GUID, "below_threshold")
			continue
		}
		if !Visible(entity, w.opts.EffectiveTime, w.opts.ForLineage) {
			w.ignoreConsolidated(ctx, candidate.GUID, entity.GUID, "not_visible")
			continue
		}

		w.visited[entity.GUID] = true
		return entity, nil
	}
	return nil, nil
}

func (w *Walker) ignoreConsolidated(ctx context.Context, candidateGUID, consolidatedGUID, reason string) {
	w.logger.Debug("consolidated entity ignored",
		zap.String("guid", candidateGUID),
		zap.String("consolidated_guid", consolidatedGUID),
		zap.String("reason", reason))
	w.sink.Log(ctx, diag.EventConsolidatedIgnored, map[string]interface{}{
		"guid":              candidateGUID,
		"consolidated_guid": consolidatedGUID,
		"reason":            reason,
	})
}

// pushPeers queues every peer of candidate linked with a sufficient status
// that has not been visited or queued yet.
func (w *Walker) pushPeers(ctx context.Context, candidate *model.EntityInstance) error {
	links, err := w.links(ctx, candidate.GUID, model.PeerDuplicateLinkType)
	if err != nil {
		return w.tolerate(ctx, candidate.GUID, "peer_lookup", err)
	}

	for _, link := range links {
		if !link.EffectiveAt(w.opts.EffectiveTime) {
			continue
		}
		status, _ := link.Properties.Int(model.StatusIdentifierProperty)
		if status < w.opts.PeerThreshold {
			continue
		}
		far, ok := link.Counterpart(candidate.GUID)
		if !ok || far.GUID == candidate.GUID || w.visited[far.GUID] || w.queued[far.GUID] {
			continue
		}

		// Queued before the fetch so a peer that cannot be read is tried once.
		w.queued[far.GUID] = true
		peer, err := w.store.GetEntity(ctx, far.GUID, w.opts.AsOfTime)
		if err != nil {
			if err := w.tolerate(ctx, far.GUID, "peer_fetch", err); err != nil {
				return err
			}
			continue
		}
		w.stack = append(w.stack, peer)
	}
	return nil
}

func (w *Walker) links(ctx context.Context, guid, typeName string) ([]*model.RelationshipInstance, error) {
	q := driver.RelationshipQuery{
		EntityGUID: guid,
		TypeName:   typeName,
		Statuses:   []model.InstanceStatus{model.StatusActive},
		AsOfTime:   w.opts.AsOfTime,
		PageSize:   w.opts.PageSize,
	}
	return driver.CollectRelationships(ctx, w.store, q, w.opts.MaxPages)
}

// tolerate decides whether a store failure ends the walk. Only an
// unavailable store does; anything else costs the affected member.
func (w *Walker) tolerate(ctx context.Context, guid, stage string, err error) error {
	kind := model.KindOf(err)
	if kind == model.KindStoreUnavailable {
		return err
	}

	w.skipped = append(w.skipped, guid)
	w.logger.Warn("skipping cluster member",
		zap.String("guid", guid),
		zap.String("stage", stage),
		zap.Error(err))
	diag.MembersSkipped.WithLabelValues(stage).Inc()
	w.sink.Log(ctx, diag.EventPeerSkipped, map[string]interface{}{
		"guid":  guid,
		"stage": stage,
		"kind":  kind.String(),
		"error": err.Error(),
	})
	return nil
}
