package driver

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/unison/internal/core/model"
)

type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error)
	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store is the read side of the metadata graph store consumed by the
// resolution engine. Implementations return *model.Error values so callers
// can tell a missing instance from an unreachable store.
type Store interface {
	GetEntity(ctx context.Context, guid string, asOfTime *time.Time) (*model.EntityInstance, error)
	GetRelationshipsForEntity(ctx context.Context, q RelationshipQuery) (RelationshipPage, error)
}

// Loader writes fixture data into a store. Only the CLI and tests use it.
type Loader interface {
	Load(ctx context.Context, f *Fixture) error
}

type RelationshipQuery struct {
	EntityGUID string
	// TypeGUID and TypeName restrict the type when non-empty.
	TypeGUID string
	TypeName string
	Statuses []model.InstanceStatus
	AsOfTime *time.Time
	From     int
	PageSize int
}

type RelationshipPage struct {
	Relationships []*model.RelationshipInstance
	// More is false once the store has nothing beyond this page. An empty
	// page with More set must be requested again from the next offset.
	More bool
}

type Fixture struct {
	Entities      []*model.EntityInstance       `json:"entities"`
	Proxies       []model.EntityProxy           `json:"proxies,omitempty"`
	Relationships []*model.RelationshipInstance `json:"relationships"`
}
