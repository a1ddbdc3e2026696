package driver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agenthands/unison/internal/core/model"
)

// MockStore is an in-memory Store for tests. Errors can be injected per
// GUID; relationship pages honour From and PageSize like the real stores.
type MockStore struct {
	mu sync.Mutex

	Entities      map[string]*model.EntityInstance
	Proxies       map[string]bool
	Relationships []*model.RelationshipInstance

	EntityErrs       map[string]error
	RelationshipErrs map[string]error

	EntityCalls       []string
	RelationshipCalls []RelationshipQuery
}

func NewMockStore() *MockStore {
	return &MockStore{
		Entities:         make(map[string]*model.EntityInstance),
		Proxies:          make(map[string]bool),
		EntityErrs:       make(map[string]error),
		RelationshipErrs: make(map[string]error),
	}
}

func (m *MockStore) AddEntities(entities ...*model.EntityInstance) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		m.Entities[e.GUID] = e
	}
	return m
}

func (m *MockStore) AddRelationships(rels ...*model.RelationshipInstance) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Relationships = append(m.Relationships, rels...)
	return m
}

func (m *MockStore) GetEntity(_ context.Context, guid string, asOfTime *time.Time) (*model.EntityInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntityCalls = append(m.EntityCalls, guid)

	if err := m.EntityErrs[guid]; err != nil {
		return nil, err
	}
	if m.Proxies[guid] {
		return nil, model.ProxyOnlyError("get entity", guid)
	}
	e, ok := m.Entities[guid]
	if !ok || (asOfTime != nil && e.CreateTime.After(*asOfTime)) {
		return nil, model.NotFoundError("get entity", guid)
	}
	return e.Copy(), nil
}

func (m *MockStore) GetRelationshipsForEntity(_ context.Context, q RelationshipQuery) (RelationshipPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RelationshipCalls = append(m.RelationshipCalls, q)

	if err := m.RelationshipErrs[q.EntityGUID]; err != nil {
		return RelationshipPage{}, err
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}

	var matched []*model.RelationshipInstance
	for _, r := range m.Relationships {
		if r.End1.GUID != q.EntityGUID && r.End2.GUID != q.EntityGUID {
			continue
		}
		if q.TypeGUID != "" && r.TypeGUID != q.TypeGUID {
			continue
		}
		if q.TypeName != "" && r.TypeName != q.TypeName {
			continue
		}
		if !hasStatus(q.Statuses, r.Status) {
			continue
		}
		if q.AsOfTime != nil && r.CreateTime.After(*q.AsOfTime) {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].GUID < matched[j].GUID })

	if q.From >= len(matched) {
		return RelationshipPage{}, nil
	}
	end := q.From + q.PageSize
	page := RelationshipPage{More: end < len(matched)}
	if end > len(matched) {
		end = len(matched)
	}
	for _, r := range matched[q.From:end] {
		page.Relationships = append(page.Relationships, r.Copy())
	}
	return page, nil
}

func hasStatus(statuses []model.InstanceStatus, s model.InstanceStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
