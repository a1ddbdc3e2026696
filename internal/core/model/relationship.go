package model

import "time"

type RelationshipInstance struct {
	GUID       string         `json:"guid"`
	TypeGUID   string         `json:"type_guid,omitempty"`
	TypeName   string         `json:"type_name"`
	Status     InstanceStatus `json:"status"`
	Properties *Properties    `json:"properties,omitempty"`
	End1       EntityProxy    `json:"end1"`
	End2       EntityProxy    `json:"end2"`
	CreatedBy  string         `json:"created_by,omitempty"`
	UpdatedBy  string         `json:"updated_by,omitempty"`
	CreateTime time.Time      `json:"create_time"`
	UpdateTime *time.Time     `json:"update_time,omitempty"`
	Version    int64          `json:"version"`
}

func (r *RelationshipInstance) LastModified() time.Time {
	if r.UpdateTime != nil {
		return *r.UpdateTime
	}
	return r.CreateTime
}

func (r *RelationshipInstance) EffectiveAt(t *time.Time) bool {
	return r.Properties.EffectiveAt(t)
}

// EndOf returns 1 or 2 for the end that references guid, 0 for neither.
func (r *RelationshipInstance) EndOf(guid string) int {
	switch guid {
	case r.End1.GUID:
		return 1
	case r.End2.GUID:
		return 2
	}
	return 0
}

// Counterpart returns the end opposite to guid.
func (r *RelationshipInstance) Counterpart(guid string) (EntityProxy, bool) {
	switch guid {
	case r.End1.GUID:
		return r.End2, true
	case r.End2.GUID:
		return r.End1, true
	}
	return EntityProxy{}, false
}

func (r *RelationshipInstance) Copy() *RelationshipInstance {
	out := *r
	out.Properties = r.Properties.Copy()
	out.UpdateTime = copyTime(r.UpdateTime)
	return &out
}

// Attachment ends accepted by relationship queries.
const (
	AttachAnyEnd = 0
	AttachEnd1   = 1
	AttachEnd2   = 2
)

type Cardinality string

const (
	AtMostOne Cardinality = "AT_MOST_ONE"
	AnyNumber Cardinality = "ANY_NUMBER"
)

type RelationshipTypeCardinality struct {
	TypeName  string      `json:"type_name"`
	MultiLink bool        `json:"multi_link"`
	End1      Cardinality `json:"end1_cardinality"`
	End2      Cardinality `json:"end2_cardinality"`

	// Directional is true when the two ends have distinct attribute names.
	Directional bool `json:"directional"`
}
