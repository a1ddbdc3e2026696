package core

import (
	"time"

	"github.com/agenthands/unison/internal/core/model"
)

type ownedClassification struct {
	classification model.Classification
	owner          string
}

// mergeMembers builds the single view of a peer cluster: a copy of the most
// recently changed member carrying, per classification name, the most
// recently changed classification found on any member.
func mergeMembers(members []*model.EntityInstance, effectiveTime *time.Time) *model.EntityInstance {
	base := members[0]
	for _, m := range members[1:] {
		if model.LaterEntity(m, base) {
			base = m
		}
	}

	latest := make(map[string]ownedClassification)
	for _, m := range members {
		for _, c := range m.Classifications {
			if !c.Properties.EffectiveAt(effectiveTime) {
				continue
			}
			cur, ok := latest[c.Name]
			if !ok || model.LaterClassification(c, m.GUID, cur.classification, cur.owner) {
				latest[c.Name] = ownedClassification{classification: c, owner: m.GUID}
			}
		}
	}

	merged := make([]model.Classification, 0, len(latest))
	for _, oc := range latest {
		merged = append(merged, oc.classification)
	}
	return base.WithClassifications(merged)
}

// withEffectiveClassifications drops the classifications of e that are not
// in effect at effectiveTime. e is returned unchanged when nothing expired.
func withEffectiveClassifications(e *model.EntityInstance, effectiveTime *time.Time) *model.EntityInstance {
	expired := false
	for _, c := range e.Classifications {
		if !c.Properties.EffectiveAt(effectiveTime) {
			expired = true
			break
		}
	}
	if !expired {
		return e
	}

	out := e.Copy()
	out.Classifications = out.Classifications[:0]
	for _, c := range e.Classifications {
		if c.Properties.EffectiveAt(effectiveTime) {
			out.Classifications = append(out.Classifications, c.Copy())
		}
	}
	return out
}
