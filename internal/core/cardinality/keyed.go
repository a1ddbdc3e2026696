package cardinality

import "github.com/agenthands/unison/internal/core/model"

// keyedList keeps the latest relationship per key. Keys stay in first-seen
// order; a later relationship replaces the earlier one in place.
type keyedList struct {
	keys  []string
	items map[string]*model.RelationshipInstance
}

func newKeyedList() *keyedList {
	return &keyedList{items: make(map[string]*model.RelationshipInstance)}
}

func (k *keyedList) keepLater(key string, rel *model.RelationshipInstance) {
	if cur, ok := k.items[key]; ok {
		if model.LaterRelationship(rel, cur) {
			k.items[key] = rel
		}
		return
	}
	k.keys = append(k.keys, key)
	k.items[key] = rel
}

func (k *keyedList) list() []*model.RelationshipInstance {
	out := make([]*model.RelationshipInstance, 0, len(k.keys))
	for _, key := range k.keys {
		out = append(out, k.items[key])
	}
	return out
}

func dedupeByGUID(rels []*model.RelationshipInstance) []*model.RelationshipInstance {
	seen := newKeyedList()
	for _, rel := range rels {
		seen.keepLater(rel.GUID, rel)
	}
	return seen.list()
}

// collapseUniLink folds relationships joining the same ordered pair of ends.
func collapseUniLink(rels []*model.RelationshipInstance) []*model.RelationshipInstance {
	seen := newKeyedList()
	for _, rel := range rels {
		seen.keepLater(rel.End1.GUID+"\x00"+rel.End2.GUID, rel)
	}
	return seen.list()
}
