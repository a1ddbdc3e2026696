package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/core/model"
)

// MemgraphStore reads entities and relationships from a Memgraph (or any
// bolt-speaking) database through a GraphDriver.
type MemgraphStore struct {
	Driver GraphDriver
	Logger *zap.Logger
}

func NewMemgraphStore(d GraphDriver, logger *zap.Logger) *MemgraphStore {
	return &MemgraphStore{Driver: d, Logger: logger}
}

func (s *MemgraphStore) GetEntity(ctx context.Context, guid string, asOfTime *time.Time) (*model.EntityInstance, error) {
	params := map[string]interface{}{
		"guid":  guid,
		"as_of": optionalMillis(asOfTime),
	}

	res, err := s.Driver.ExecuteQuery(ctx, GetEntityQuery, params)
	if err != nil {
		return nil, classifyGraphError("get entity", err)
	}
	if len(res.Records) == 0 {
		return nil, model.NotFoundError("get entity", guid)
	}

	rec := res.Records[0]
	if recordBool(rec, "is_proxy") {
		return nil, model.ProxyOnlyError("get entity", guid)
	}
	return decodeEntityRecord(rec)
}

func (s *MemgraphStore) GetRelationshipsForEntity(ctx context.Context, q RelationshipQuery) (RelationshipPage, error) {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	statuses := make([]string, 0, len(q.Statuses))
	for _, st := range q.Statuses {
		statuses = append(statuses, string(st))
	}

	params := map[string]interface{}{
		"guid":      q.EntityGUID,
		"type_guid": q.TypeGUID,
		"type_name": q.TypeName,
		"statuses":  statuses,
		"as_of":     optionalMillis(q.AsOfTime),
		"skip":      q.From,
		// One extra row tells us whether another page exists.
		"limit": q.PageSize + 1,
	}

	res, err := s.Driver.ExecuteQuery(ctx, GetRelationshipsForEntityQuery, params)
	if err != nil {
		return RelationshipPage{}, classifyGraphError("get relationships", err)
	}

	page := RelationshipPage{}
	for i, rec := range res.Records {
		if i == q.PageSize {
			page.More = true
			break
		}
		rel, err := decodeRelationshipRecord(rec)
		if err != nil {
			return RelationshipPage{}, err
		}
		page.Relationships = append(page.Relationships, rel)
	}
	return page, nil
}

// Load writes a fixture: proxies first, then full entities, then
// relationships, so every relationship finds both of its ends.
func (s *MemgraphStore) Load(ctx context.Context, f *Fixture) error {
	for _, p := range f.Proxies {
		proxy := &model.EntityInstance{GUID: p.GUID, TypeName: p.TypeName, Status: model.StatusActive}
		if len(p.UniqueProperties) > 0 {
			proxy.Properties = &model.Properties{Values: p.UniqueProperties}
			for name := range p.UniqueProperties {
				proxy.UniqueProperties = append(proxy.UniqueProperties, name)
			}
		}
		if err := s.saveEntity(ctx, proxy, true); err != nil {
			return err
		}
	}
	for _, e := range f.Entities {
		if err := s.saveEntity(ctx, e, false); err != nil {
			return err
		}
	}
	for _, r := range f.Relationships {
		if err := s.saveRelationship(ctx, r); err != nil {
			return err
		}
	}
	s.Logger.Info("fixture loaded",
		zap.Int("entities", len(f.Entities)),
		zap.Int("proxies", len(f.Proxies)),
		zap.Int("relationships", len(f.Relationships)))
	return nil
}

func (s *MemgraphStore) saveEntity(ctx context.Context, e *model.EntityInstance, proxy bool) error {
	props, err := encodeJSON(e.Properties)
	if err != nil {
		return err
	}
	classifications, err := encodeJSON(e.Classifications)
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"guid":              e.GUID,
		"type_name":         e.TypeName,
		"status":            string(e.Status),
		"properties":        props,
		"classifications":   classifications,
		"unique_properties": e.UniqueProperties,
		"created_by":        e.CreatedBy,
		"updated_by":        e.UpdatedBy,
		"create_time":       e.CreateTime.UnixMilli(),
		"update_time":       optionalMillis(e.UpdateTime),
		"version":           e.Version,
		"is_proxy":          proxy,
	}
	if _, err := s.Driver.ExecuteQuery(ctx, SaveEntityQuery, params); err != nil {
		return classifyGraphError("save entity", err)
	}
	return nil
}

func (s *MemgraphStore) saveRelationship(ctx context.Context, r *model.RelationshipInstance) error {
	props, err := encodeJSON(r.Properties)
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"guid":        r.GUID,
		"type_guid":   r.TypeGUID,
		"type_name":   r.TypeName,
		"status":      string(r.Status),
		"properties":  props,
		"end1_guid":   r.End1.GUID,
		"end2_guid":   r.End2.GUID,
		"created_by":  r.CreatedBy,
		"updated_by":  r.UpdatedBy,
		"create_time": r.CreateTime.UnixMilli(),
		"update_time": optionalMillis(r.UpdateTime),
		"version":     r.Version,
	}
	if _, err := s.Driver.ExecuteQuery(ctx, SaveRelationshipQuery, params); err != nil {
		return classifyGraphError("save relationship", err)
	}
	return nil
}

func decodeEntityRecord(rec *neo4j.Record) (*model.EntityInstance, error) {
	e := &model.EntityInstance{
		GUID:             recordString(rec, "guid"),
		TypeName:         recordString(rec, "type_name"),
		Status:           model.InstanceStatus(recordString(rec, "status")),
		CreatedBy:        recordString(rec, "created_by"),
		UpdatedBy:        recordString(rec, "updated_by"),
		UniqueProperties: recordStrings(rec, "unique_properties"),
	}
	if ms, ok := recordInt(rec, "create_time"); ok {
		e.CreateTime = time.UnixMilli(ms).UTC()
	}
	if ms, ok := recordInt(rec, "update_time"); ok {
		t := time.UnixMilli(ms).UTC()
		e.UpdateTime = &t
	}
	e.Version, _ = recordInt(rec, "version")

	if raw := recordString(rec, "properties"); raw != "" && raw != "null" {
		e.Properties = &model.Properties{}
		if err := json.Unmarshal([]byte(raw), e.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode properties of entity %s: %w", e.GUID, err)
		}
	}
	if raw := recordString(rec, "classifications"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &e.Classifications); err != nil {
			return nil, fmt.Errorf("failed to decode classifications of entity %s: %w", e.GUID, err)
		}
	}
	return e, nil
}

func decodeRelationshipRecord(rec *neo4j.Record) (*model.RelationshipInstance, error) {
	r := &model.RelationshipInstance{
		GUID:      recordString(rec, "guid"),
		TypeGUID:  recordString(rec, "type_guid"),
		TypeName:  recordString(rec, "type_name"),
		Status:    model.InstanceStatus(recordString(rec, "status")),
		CreatedBy: recordString(rec, "created_by"),
		UpdatedBy: recordString(rec, "updated_by"),
	}
	if ms, ok := recordInt(rec, "create_time"); ok {
		r.CreateTime = time.UnixMilli(ms).UTC()
	}
	if ms, ok := recordInt(rec, "update_time"); ok {
		t := time.UnixMilli(ms).UTC()
		r.UpdateTime = &t
	}
	r.Version, _ = recordInt(rec, "version")

	if raw := recordString(rec, "properties"); raw != "" && raw != "null" {
		r.Properties = &model.Properties{}
		if err := json.Unmarshal([]byte(raw), r.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode properties of relationship %s: %w", r.GUID, err)
		}
	}

	var err error
	if r.End1, err = decodeProxy(rec, "end1"); err != nil {
		return nil, err
	}
	if r.End2, err = decodeProxy(rec, "end2"); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeProxy(rec *neo4j.Record, prefix string) (model.EntityProxy, error) {
	e := &model.EntityInstance{
		GUID:             recordString(rec, prefix+"_guid"),
		TypeName:         recordString(rec, prefix+"_type_name"),
		UniqueProperties: recordStrings(rec, prefix+"_unique_properties"),
	}
	if raw := recordString(rec, prefix+"_properties"); raw != "" && raw != "null" && len(e.UniqueProperties) > 0 {
		e.Properties = &model.Properties{}
		if err := json.Unmarshal([]byte(raw), e.Properties); err != nil {
			return model.EntityProxy{}, fmt.Errorf("failed to decode properties of entity %s: %w", e.GUID, err)
		}
	}
	return e.Proxy(), nil
}

// classifyGraphError maps driver failures onto the store error kinds. Only
// connectivity problems make the store unavailable; anything else is
// reported as a plain failure of this one call.
func classifyGraphError(op string, err error) error {
	var connErr *neo4j.ConnectivityError
	if errors.As(err, &connErr) || errors.Is(err, context.DeadlineExceeded) {
		return model.StoreUnavailableError(op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func recordString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func recordBool(rec *neo4j.Record, key string) bool {
	v, _ := rec.Get(key)
	b, _ := v.(bool)
	return b
}

func recordInt(rec *neo4j.Record, key string) (int64, bool) {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func recordStrings(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func optionalMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return string(data), nil
}
