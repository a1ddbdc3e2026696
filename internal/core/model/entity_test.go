package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(day int) time.Time {
	return time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC)
}

func tp(day int) *time.Time {
	t := ts(day)
	return &t
}

func TestPropertiesEffectiveAt(t *testing.T) {
	window := &Properties{EffectiveFrom: tp(10), EffectiveTo: tp(20)}

	tests := []struct {
		name  string
		props *Properties
		at    *time.Time
		want  bool
	}{
		{"nil time matches anything", window, nil, true},
		{"nil properties match anything", nil, tp(1), true},
		{"before window", window, tp(9), false},
		{"window start is inclusive", window, tp(10), true},
		{"inside window", window, tp(15), true},
		{"window end is exclusive", window, tp(20), false},
		{"open ended", &Properties{EffectiveFrom: tp(10)}, tp(28), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.props.EffectiveAt(tt.at))
		})
	}
}

func TestPropertiesInt(t *testing.T) {
	p := &Properties{Values: map[string]interface{}{
		"json":  float64(2),
		"bolt":  int64(3),
		"plain": 4,
		"text":  "5",
	}}

	v, ok := p.Int("json")
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)

	v, ok = p.Int("bolt")
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	v, ok = p.Int("plain")
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	_, ok = p.Int("text")
	assert.False(t, ok)
	_, ok = p.Int("missing")
	assert.False(t, ok)

	var nilProps *Properties
	_, ok = nilProps.Int("json")
	assert.False(t, ok)
}

func TestEntityCopyIsDeep(t *testing.T) {
	e := &EntityInstance{
		GUID:       "a",
		Properties: &Properties{Values: map[string]interface{}{"name": "Ada"}},
		Classifications: []Classification{
			{Name: "Confidentiality", Properties: &Properties{Values: map[string]interface{}{"level": 1}}},
		},
		UpdateTime:       tp(2),
		UniqueProperties: []string{"name"},
	}

	c := e.Copy()
	c.Properties.Values["name"] = "Grace"
	c.Classifications[0].Properties.Values["level"] = 5
	*c.UpdateTime = ts(9)
	c.UniqueProperties[0] = "other"

	assert.Equal(t, "Ada", e.Properties.Values["name"])
	assert.Equal(t, 1, e.Classifications[0].Properties.Values["level"])
	assert.Equal(t, ts(2), *e.UpdateTime)
	assert.Equal(t, "name", e.UniqueProperties[0])
}

func TestEntityClassificationHonoursEffectivity(t *testing.T) {
	e := &EntityInstance{Classifications: []Classification{
		{Name: MementoClassification, Properties: &Properties{EffectiveFrom: tp(10)}},
	}}

	_, ok := e.Classification(MementoClassification, tp(5))
	assert.False(t, ok)

	c, ok := e.Classification(MementoClassification, tp(15))
	require.True(t, ok)
	assert.Equal(t, MementoClassification, c.Name)

	_, ok = e.Classification(MementoClassification, nil)
	assert.True(t, ok)
}

func TestWithClassificationsSortsByName(t *testing.T) {
	e := &EntityInstance{GUID: "a"}
	out := e.WithClassifications([]Classification{{Name: "Zeta"}, {Name: "Alpha"}, {Name: "Mid"}})

	names := make([]string, len(out.Classifications))
	for i, c := range out.Classifications {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, names)
	assert.Empty(t, e.Classifications)
}

func TestEntityProxyCarriesUniqueProperties(t *testing.T) {
	e := &EntityInstance{
		GUID:             "a",
		TypeName:         "Person",
		Properties:       &Properties{Values: map[string]interface{}{"qualifiedName": "ada@example", "age": 36}},
		UniqueProperties: []string{"qualifiedName"},
	}

	p := e.Proxy()
	assert.Equal(t, "a", p.GUID)
	assert.Equal(t, "Person", p.TypeName)
	assert.Equal(t, map[string]interface{}{"qualifiedName": "ada@example"}, p.UniqueProperties)
}

func TestRelationshipEnds(t *testing.T) {
	r := &RelationshipInstance{End1: EntityProxy{GUID: "a"}, End2: EntityProxy{GUID: "b"}}

	assert.Equal(t, 1, r.EndOf("a"))
	assert.Equal(t, 2, r.EndOf("b"))
	assert.Equal(t, 0, r.EndOf("c"))

	far, ok := r.Counterpart("a")
	assert.True(t, ok)
	assert.Equal(t, "b", far.GUID)

	_, ok = r.Counterpart("c")
	assert.False(t, ok)
}
