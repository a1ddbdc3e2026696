package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/core/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(context.Background(), ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(24 * time.Hour)
	err := store.Load(ctx, &Fixture{
		Entities: []*model.EntityInstance{{
			GUID:       "a",
			TypeName:   "Person",
			Properties: &model.Properties{Values: map[string]interface{}{"name": "Ada"}},
			Classifications: []model.Classification{{
				Name:       model.KnownDuplicateClassification,
				CreateTime: created,
				Version:    1,
			}},
			CreateTime: created,
			UpdateTime: &updated,
			Version:    2,
		}},
		Proxies: []model.EntityProxy{{GUID: "x", TypeName: "Thing"}},
		Relationships: []*model.RelationshipInstance{
			{GUID: "r1", TypeName: "OwnsOneThing", End1: model.EntityProxy{GUID: "a"}, End2: model.EntityProxy{GUID: "x"}, CreateTime: created},
			{GUID: "r2", TypeName: model.PeerDuplicateLinkType, End1: model.EntityProxy{GUID: "a"}, End2: model.EntityProxy{GUID: "b"}, CreateTime: updated},
			{GUID: "r3", TypeName: "OwnsOneThing", Status: model.StatusDeleted, End1: model.EntityProxy{GUID: "a"}, End2: model.EntityProxy{GUID: "y"}, CreateTime: created},
		},
	})
	require.NoError(t, err)

	e, err := store.GetEntity(ctx, "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "Person", e.TypeName)
	assert.Equal(t, model.StatusActive, e.Status, "missing status defaults to ACTIVE")
	assert.Equal(t, int64(2), e.Version)
	assert.True(t, e.CreateTime.Equal(created))
	require.NotNil(t, e.UpdateTime)
	require.Len(t, e.Classifications, 1)

	_, err = store.GetEntity(ctx, "x", nil)
	assert.ErrorIs(t, err, model.ErrProxyOnly)

	_, err = store.GetEntity(ctx, "nobody", nil)
	assert.ErrorIs(t, err, model.ErrNotFound)

	before := created.Add(-time.Hour)
	_, err = store.GetEntity(ctx, "a", &before)
	assert.ErrorIs(t, err, model.ErrNotFound, "entity created after the as-of time is invisible")

	page, err := store.GetRelationshipsForEntity(ctx, RelationshipQuery{
		EntityGUID: "a",
		Statuses:   []model.InstanceStatus{model.StatusActive},
	})
	require.NoError(t, err)
	assert.False(t, page.More)
	assert.Len(t, page.Relationships, 2)

	page, err = store.GetRelationshipsForEntity(ctx, RelationshipQuery{EntityGUID: "a", TypeName: "OwnsOneThing"})
	require.NoError(t, err)
	assert.Len(t, page.Relationships, 2, "no status filter reads every status")

	page, err = store.GetRelationshipsForEntity(ctx, RelationshipQuery{EntityGUID: "x"})
	require.NoError(t, err)
	require.Len(t, page.Relationships, 1)
	assert.Equal(t, "r1", page.Relationships[0].GUID)

	page, err = store.GetRelationshipsForEntity(ctx, RelationshipQuery{EntityGUID: "a", AsOfTime: &created})
	require.NoError(t, err)
	assert.Len(t, page.Relationships, 2)
}

func TestSQLiteStorePaging(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	f := &Fixture{}
	for _, guid := range []string{"r1", "r2", "r3", "r4", "r5"} {
		f.Relationships = append(f.Relationships, rel(guid, "a", "x-"+guid))
	}
	require.NoError(t, store.Load(ctx, f))

	page, err := store.GetRelationshipsForEntity(ctx, RelationshipQuery{EntityGUID: "a", PageSize: 2, From: 2})
	require.NoError(t, err)
	assert.True(t, page.More)
	require.Len(t, page.Relationships, 2)
	assert.Equal(t, "r3", page.Relationships[0].GUID)
	assert.Equal(t, "r4", page.Relationships[1].GUID)

	rels, err := CollectRelationships(ctx, store, RelationshipQuery{EntityGUID: "a", PageSize: 2}, 0)
	require.NoError(t, err)
	assert.Len(t, rels, 5)
}

func TestSQLiteStoreLoadAssignsGUIDs(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	e := &model.EntityInstance{TypeName: "Person"}
	require.NoError(t, store.Load(ctx, &Fixture{Entities: []*model.EntityInstance{e}}))
	require.NotEmpty(t, e.GUID)

	got, err := store.GetEntity(ctx, e.GUID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Person", got.TypeName)
}
