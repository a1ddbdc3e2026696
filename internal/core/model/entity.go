package model

import (
	"sort"
	"time"
)

type InstanceStatus string

const (
	StatusActive  InstanceStatus = "ACTIVE"
	StatusDraft   InstanceStatus = "DRAFT"
	StatusDeleted InstanceStatus = "DELETED"
)

// Properties is a property set with an optional effectivity window.
type Properties struct {
	Values        map[string]interface{} `json:"values,omitempty"`
	EffectiveFrom *time.Time             `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time             `json:"effective_to,omitempty"`
}

// EffectiveAt reports whether the window contains t. The window is closed at
// EffectiveFrom and open at EffectiveTo. A nil t matches any window, as does a
// nil property set.
func (p *Properties) EffectiveAt(t *time.Time) bool {
	if p == nil || t == nil {
		return true
	}
	if p.EffectiveFrom != nil && t.Before(*p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && !t.Before(*p.EffectiveTo) {
		return false
	}
	return true
}

// Int returns a numeric property as int64. JSON decoding yields float64 and
// the bolt protocol yields int64, so both are accepted.
func (p *Properties) Int(name string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p.Values[name].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	}
	return 0, false
}

func (p *Properties) Copy() *Properties {
	if p == nil {
		return nil
	}
	out := &Properties{
		EffectiveFrom: copyTime(p.EffectiveFrom),
		EffectiveTo:   copyTime(p.EffectiveTo),
	}
	if p.Values != nil {
		out.Values = make(map[string]interface{}, len(p.Values))
		for k, v := range p.Values {
			out.Values[k] = v
		}
	}
	return out
}

type ClassificationOrigin string

const (
	OriginAssigned   ClassificationOrigin = "ASSIGNED"
	OriginPropagated ClassificationOrigin = "PROPAGATED"
)

type Classification struct {
	Name       string               `json:"name"`
	Properties *Properties          `json:"properties,omitempty"`
	Origin     ClassificationOrigin `json:"origin,omitempty"`
	OriginGUID string               `json:"origin_guid,omitempty"`
	CreateTime time.Time            `json:"create_time"`
	UpdateTime *time.Time           `json:"update_time,omitempty"`
	Version    int64                `json:"version"`
}

func (c Classification) LastModified() time.Time {
	if c.UpdateTime != nil {
		return *c.UpdateTime
	}
	return c.CreateTime
}

func (c Classification) Copy() Classification {
	c.Properties = c.Properties.Copy()
	c.UpdateTime = copyTime(c.UpdateTime)
	return c
}

type EntityProxy struct {
	GUID             string                 `json:"guid"`
	TypeName         string                 `json:"type_name"`
	UniqueProperties map[string]interface{} `json:"unique_properties,omitempty"`
}

type EntityInstance struct {
	GUID            string           `json:"guid"`
	TypeName        string           `json:"type_name"`
	Status          InstanceStatus   `json:"status"`
	Properties      *Properties      `json:"properties,omitempty"`
	Classifications []Classification `json:"classifications,omitempty"`
	CreatedBy       string           `json:"created_by,omitempty"`
	UpdatedBy       string           `json:"updated_by,omitempty"`
	CreateTime      time.Time        `json:"create_time"`
	UpdateTime      *time.Time       `json:"update_time,omitempty"`
	Version         int64            `json:"version"`

	// UniqueProperties names the property subset copied into proxies.
	UniqueProperties []string `json:"unique_properties,omitempty"`
}

func (e *EntityInstance) LastModified() time.Time {
	if e.UpdateTime != nil {
		return *e.UpdateTime
	}
	return e.CreateTime
}

func (e *EntityInstance) EffectiveAt(t *time.Time) bool {
	return e.Properties.EffectiveAt(t)
}

// Classification returns the named classification if it is present and
// effective at t.
func (e *EntityInstance) Classification(name string, t *time.Time) (*Classification, bool) {
	for i := range e.Classifications {
		c := &e.Classifications[i]
		if c.Name == name && c.Properties.EffectiveAt(t) {
			return c, true
		}
	}
	return nil, false
}

func (e *EntityInstance) Proxy() EntityProxy {
	proxy := EntityProxy{GUID: e.GUID, TypeName: e.TypeName}
	if len(e.UniqueProperties) > 0 && e.Properties != nil {
		proxy.UniqueProperties = make(map[string]interface{}, len(e.UniqueProperties))
		for _, name := range e.UniqueProperties {
			if v, ok := e.Properties.Values[name]; ok {
				proxy.UniqueProperties[name] = v
			}
		}
	}
	return proxy
}

// Copy returns a deep copy safe to modify without touching e.
func (e *EntityInstance) Copy() *EntityInstance {
	out := *e
	out.Properties = e.Properties.Copy()
	out.UpdateTime = copyTime(e.UpdateTime)
	if e.Classifications != nil {
		out.Classifications = make([]Classification, len(e.Classifications))
		for i, c := range e.Classifications {
			out.Classifications[i] = c.Copy()
		}
	}
	if e.UniqueProperties != nil {
		out.UniqueProperties = append([]string(nil), e.UniqueProperties...)
	}
	return &out
}

// WithClassifications returns a copy of e carrying the given classifications
// ordered by name.
func (e *EntityInstance) WithClassifications(classifications []Classification) *EntityInstance {
	out := e.Copy()
	out.Classifications = make([]Classification, len(classifications))
	for i, c := range classifications {
		out.Classifications[i] = c.Copy()
	}
	sort.Slice(out.Classifications, func(i, j int) bool {
		return out.Classifications[i].Name < out.Classifications[j].Name
	})
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
