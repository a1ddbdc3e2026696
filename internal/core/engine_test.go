package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/core/cardinality"
	"github.com/agenthands/unison/internal/core/model"
	"github.com/agenthands/unison/internal/diag"
	"github.com/agenthands/unison/internal/driver"
)

func day(d int) time.Time {
	return time.Date(2024, time.May, d, 0, 0, 0, 0, time.UTC)
}

func dayp(d int) *time.Time {
	t := day(d)
	return &t
}

type entityOpt func(*model.EntityInstance)

func updated(d int) entityOpt {
	return func(e *model.EntityInstance) { e.UpdateTime = dayp(d) }
}

func classified(name string, d int, values map[string]interface{}) entityOpt {
	return func(e *model.EntityInstance) {
		c := model.Classification{Name: name, CreateTime: day(d)}
		if values != nil {
			c.Properties = &model.Properties{Values: values}
		}
		e.Classifications = append(e.Classifications, c)
	}
}

func duplicate() entityOpt {
	return classified(model.KnownDuplicateClassification, 1, nil)
}

func effective(from, to int) entityOpt {
	return func(e *model.EntityInstance) {
		e.Properties = &model.Properties{EffectiveFrom: dayp(from), EffectiveTo: dayp(to)}
	}
}

func newEntity(guid, typeName string, created int, opts ...entityOpt) *model.EntityInstance {
	e := &model.EntityInstance{GUID: guid, TypeName: typeName, Status: model.StatusActive, CreateTime: day(created), Version: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

func newRel(guid, typeName, end1, end2 string, created int) *model.RelationshipInstance {
	return &model.RelationshipInstance{
		GUID:       guid,
		TypeName:   typeName,
		Status:     model.StatusActive,
		End1:       model.EntityProxy{GUID: end1},
		End2:       model.EntityProxy{GUID: end2},
		CreateTime: day(created),
		Version:    1,
	}
}

func peer(guid, end1, end2 string) *model.RelationshipInstance {
	r := newRel(guid, model.PeerDuplicateLinkType, end1, end2, 1)
	r.Properties = &model.Properties{Values: map[string]interface{}{model.StatusIdentifierProperty: int64(1)}}
	return r
}

func newTestEngine(store driver.Store, sink diag.Sink) *Engine {
	catalog := cardinality.NewStaticCatalog(
		model.RelationshipTypeCardinality{TypeName: "OwnsOneThing", End1: model.AnyNumber, End2: model.AtMostOne, Directional: true},
		model.RelationshipTypeCardinality{TypeName: "Tagged", End1: model.AnyNumber, End2: model.AnyNumber},
	)
	return NewEngine(store, catalog, sink, Settings{ConsolidationThreshold: 1, PageSize: 2}, zap.NewNop())
}

// peerCluster holds A, B and C linked A-B-C, with B the most recently
// updated member.
func peerCluster() *driver.MockStore {
	return driver.NewMockStore().
		AddEntities(
			newEntity("A", "Person", 1, duplicate(),
				classified("Confidentiality", 1, map[string]interface{}{"level": 1})),
			newEntity("B", "Person", 2, updated(9), duplicate(),
				classified("Confidentiality", 4, map[string]interface{}{"level": 3})),
			newEntity("C", "Person", 3, duplicate(),
				classified("Criticality", 3, map[string]interface{}{"level": 2})),
		).
		AddRelationships(peer("peer-ab", "A", "B"), peer("peer-bc", "B", "C"))
}

func classificationNames(e *model.EntityInstance) []string {
	names := make([]string, len(e.Classifications))
	for i, c := range e.Classifications {
		names[i] = c.Name
	}
	return names
}

func TestResolveEntityMergesPeers(t *testing.T) {
	ctx := context.Background()
	store := peerCluster()
	engine := newTestEngine(store, nil)

	resolved, err := engine.ResolveEntityByGUID(ctx, "A", Options{EffectiveTime: dayp(15)})
	require.NoError(t, err)
	require.NotNil(t, resolved)

	assert.Equal(t, "B", resolved.GUID, "most recently updated member is the base")
	assert.Equal(t, []string{"Confidentiality", "Criticality", model.KnownDuplicateClassification}, classificationNames(resolved))

	conf, ok := resolved.Classification("Confidentiality", nil)
	require.True(t, ok)
	assert.Equal(t, 3, conf.Properties.Values["level"])

	// The merge neither depends on where the walk starts nor changes the
	// stored entities.
	for _, guid := range []string{"A", "B", "C"} {
		again, err := engine.ResolveEntityByGUID(ctx, guid, Options{EffectiveTime: dayp(15)})
		require.NoError(t, err)
		assert.Equal(t, resolved, again, "start %s", guid)
	}
	assert.Len(t, store.Entities["B"].Classifications, 2)
}

func TestResolveEntityTimeTieGoesToHigherGUID(t *testing.T) {
	ctx := context.Background()
	a := newEntity("A", "Person", 1, updated(5), duplicate())
	a.Version = 7
	z := newEntity("Z", "Person", 1, updated(5), duplicate())
	store := driver.NewMockStore().AddEntities(a, z).AddRelationships(peer("peer-az", "A", "Z"))
	engine := newTestEngine(store, nil)

	for _, guid := range []string{"A", "Z"} {
		resolved, err := engine.ResolveEntityByGUID(ctx, guid, Options{})
		require.NoError(t, err)
		require.NotNil(t, resolved)
		assert.Equal(t, "Z", resolved.GUID, "start %s", guid)
		assert.Equal(t, int64(1), resolved.Version)
	}
}

func TestResolveEntityDropsExpiredClassificationsWithoutCluster(t *testing.T) {
	ctx := context.Background()
	e := newEntity("A", "Person", 1,
		classified("Confidentiality", 1, nil),
		classified("Retention", 1, nil))
	e.Classifications[1].Properties = &model.Properties{EffectiveTo: dayp(5)}
	store := driver.NewMockStore().AddEntities(e)
	engine := newTestEngine(store, nil)

	resolved, err := engine.ResolveEntityByGUID(ctx, "A", Options{EffectiveTime: dayp(10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Confidentiality"}, classificationNames(resolved))
	assert.Len(t, store.Entities["A"].Classifications, 2)

	resolved, err = engine.ResolveEntityByGUID(ctx, "A", Options{EffectiveTime: dayp(3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Confidentiality", "Retention"}, classificationNames(resolved))
}

func TestResolveEntityReportsSkippedMembers(t *testing.T) {
	ctx := context.Background()
	rec := &diag.Recorder{}
	store := peerCluster()
	store.Proxies["C"] = true
	engine := newTestEngine(store, rec)

	resolved, err := engine.ResolveEntityByGUID(ctx, "A", Options{})
	require.NoError(t, err)
	assert.Equal(t, "B", resolved.GUID)

	events := rec.Named(diag.EventClusterIncomplete)
	require.Len(t, events, 1)
	assert.Equal(t, "A", events[0].Details["start"])
	assert.Equal(t, []string{"C"}, events[0].Details["skipped"])
	assert.Equal(t, 2, events[0].Details["members"])
}

func TestResolveEntityConsolidated(t *testing.T) {
	ctx := context.Background()
	d := newEntity("D", "Person", 5,
		classified(model.ConsolidatedDuplicateClassification, 5, map[string]interface{}{model.StatusIdentifierProperty: int64(2)}))
	store := peerCluster().
		AddEntities(d).
		AddRelationships(newRel("cons-ad", model.ConsolidatedDuplicateLinkType, "A", "D", 5))
	engine := newTestEngine(store, nil)

	resolved, err := engine.ResolveEntityByGUID(ctx, "A", Options{})
	require.NoError(t, err)
	assert.Equal(t, d, resolved)
}

func TestResolveEntityOutsideEffectivity(t *testing.T) {
	store := driver.NewMockStore().AddEntities(newEntity("E", "Person", 1, effective(1, 10)))
	engine := newTestEngine(store, nil)

	resolved, err := engine.ResolveEntityByGUID(context.Background(), "E", Options{EffectiveTime: dayp(12)})
	require.NoError(t, err)
	assert.Nil(t, resolved)

	resolved, err = engine.ResolveEntityByGUID(context.Background(), "E", Options{EffectiveTime: dayp(5)})
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "E", resolved.GUID)
}

func TestResolveEntityErrors(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(peerCluster(), nil)

	_, err := engine.ResolveEntityByGUID(ctx, "missing", Options{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = engine.ResolveEntityByGUID(ctx, "A", Options{ExpectedTypeName: "Thing"})
	assert.ErrorIs(t, err, model.ErrTypeMismatch)
}

func TestResolveRelationshipsCollapsesCluster(t *testing.T) {
	ctx := context.Background()
	rec := &diag.Recorder{}
	store := peerCluster().
		AddEntities(newEntity("R", "Thing", 1)).
		AddRelationships(
			newRel("r1", "OwnsOneThing", "A", "R", 2),
			newRel("r2", "OwnsOneThing", "C", "R", 6),
		)
	engine := newTestEngine(store, rec)
	start := store.Entities["A"]

	rels, err := engine.ResolveRelationships(ctx, start, RelationshipRequest{TypeName: "OwnsOneThing"})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "r2", rels[0].GUID)
	assert.Equal(t, "A", rels[0].End1.GUID)
	assert.Equal(t, "R", rels[0].End2.GUID)

	assert.Len(t, rec.Named(diag.EventRelationshipsCollapsed), 1)
}

func TestResolveRelationshipsHidesBookkeeping(t *testing.T) {
	ctx := context.Background()
	store := peerCluster().AddRelationships(newRel("t1", "Tagged", "B", "X", 2))
	engine := newTestEngine(store, nil)

	rels, err := engine.ResolveRelationships(ctx, store.Entities["A"], RelationshipRequest{})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "t1", rels[0].GUID)

	rels, err = engine.ResolveRelationships(ctx, store.Entities["A"], RelationshipRequest{
		Options: Options{ForDuplicateProcessing: true},
	})
	require.NoError(t, err)
	require.Len(t, rels, 1, "duplicate processing reads the start entity's own links")
	assert.Equal(t, "peer-ab", rels[0].GUID)
}

func TestResolveRelationshipsDirect(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMockStore().
		AddEntities(newEntity("A", "Person", 1)).
		AddRelationships(
			newRel("t1", "Tagged", "A", "X", 1),
			newRel("t2", "Tagged", "Y", "A", 1),
			newRel("t3", "Tagged", "A", "Z", 1),
		)
	engine := newTestEngine(store, nil)
	start := store.Entities["A"]

	rels, err := engine.ResolveRelationships(ctx, start, RelationshipRequest{AttachmentEnd: model.AttachEnd1})
	require.NoError(t, err)
	assert.Len(t, rels, 2)

	rels, err = engine.ResolveRelationships(ctx, start, RelationshipRequest{AttachmentEnd: model.AttachEnd2})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "t2", rels[0].GUID)

	// PageSize 2 in the settings makes the store answer in two pages.
	rels, err = engine.ResolveRelationships(ctx, start, RelationshipRequest{StartFrom: 1, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "t2", rels[0].GUID)

	rels, err = engine.ResolveRelationships(ctx, start, RelationshipRequest{StartFrom: 5})
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestResolveRelationshipsOfConsolidatedEntity(t *testing.T) {
	ctx := context.Background()
	d := newEntity("D", "Person", 5,
		classified(model.ConsolidatedDuplicateClassification, 5, map[string]interface{}{model.StatusIdentifierProperty: int64(1)}))
	store := peerCluster().
		AddEntities(d).
		AddRelationships(
			newRel("cons-ad", model.ConsolidatedDuplicateLinkType, "A", "D", 5),
			newRel("t-a", "Tagged", "A", "X", 1),
			newRel("t-d", "Tagged", "D", "Y", 1),
		)
	engine := newTestEngine(store, nil)

	rels, err := engine.ResolveRelationships(ctx, store.Entities["A"], RelationshipRequest{TypeName: "Tagged"})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "t-d", rels[0].GUID)
}

func TestResolveRelationshipsToleratesMemberFailure(t *testing.T) {
	ctx := context.Background()
	rec := &diag.Recorder{}
	store := peerCluster().AddRelationships(
		newRel("t1", "Tagged", "A", "X", 1),
		newRel("t2", "Tagged", "C", "Y", 1),
	)
	engine := newTestEngine(store, rec)

	// Fail C only once the walk has found it.
	start := store.Entities["A"]
	members, err := engine.members(ctx, start, Options{})
	require.NoError(t, err)
	require.Len(t, members, 3)
	store.RelationshipErrs["C"] = errors.New("page decode failed")

	rels, err := engine.fanOut(ctx, start, members, RelationshipRequest{TypeName: "Tagged"})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "t1", rels[0].GUID)

	events := rec.Named(diag.EventMemberFetchFailed)
	require.Len(t, events, 1)
	assert.Equal(t, "C", events[0].Details["guid"])

	store.RelationshipErrs["C"] = model.StoreUnavailableError("get relationships", errors.New("down"))
	_, err = engine.fanOut(ctx, start, members, RelationshipRequest{TypeName: "Tagged"})
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
}

func TestResolveUniqueRelationship(t *testing.T) {
	ctx := context.Background()
	store := peerCluster().AddRelationships(
		newRel("t1", "Tagged", "A", "X", 1),
		newRel("t2", "Tagged", "B", "Y", 1),
		newRel("o1", "OwnsOneThing", "A", "X", 1),
		newRel("o2", "OwnsOneThing", "B", "Y", 2),
	)
	engine := newTestEngine(store, nil)
	start := store.Entities["A"]

	_, err := engine.ResolveUniqueRelationship(ctx, start, RelationshipRequest{TypeName: "Tagged"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAmbiguousResult)
	var modelErr *model.Error
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, []string{"t1", "t2"}, modelErr.GUIDs)

	rel, err := engine.ResolveUniqueRelationship(ctx, start, RelationshipRequest{TypeName: "OwnsOneThing"})
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "o2", rel.GUID)

	rel, err = engine.ResolveUniqueRelationship(ctx, start, RelationshipRequest{TypeName: "Missing"})
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestResolveRelatedEntities(t *testing.T) {
	ctx := context.Background()
	store := peerCluster().
		AddEntities(
			newEntity("X", "Thing", 1, duplicate()),
			newEntity("Z", "Thing", 1, updated(8), duplicate()),
			newEntity("Y", "Thing", 1),
		).
		AddRelationships(
			peer("peer-xz", "X", "Z"),
			newRel("t1", "Tagged", "A", "X", 1),
			newRel("t2", "Tagged", "B", "Y", 2),
			newRel("t3", "Tagged", "C", "Z", 3),
			newRel("t4", "Tagged", "B", "C", 4),
		)
	engine := newTestEngine(store, nil)
	start := store.Entities["A"]

	related, err := engine.ResolveRelatedEntities(ctx, start, RelationshipRequest{TypeName: "Tagged"})
	require.NoError(t, err)

	guids := make([]string, len(related))
	for i, e := range related {
		guids[i] = e.GUID
	}
	assert.Equal(t, []string{"Z", "Y"}, guids, "X and Z resolve to one entity; cluster members are not related to themselves")

	_, err = engine.ResolveRelatedEntities(ctx, start, RelationshipRequest{TypeName: "Tagged", RelatedTypeName: "Person"})
	assert.ErrorIs(t, err, model.ErrTypeMismatch)
}
