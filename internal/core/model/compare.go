package model

import "time"

// laterThan orders two instances by last modification, then GUID. The GUID
// comparison makes the choice independent of retrieval order. Version only
// separates two copies of the same instance, where the GUIDs cannot.
func laterThan(aTime, bTime time.Time, aVersion, bVersion int64, aGUID, bGUID string) bool {
	if !aTime.Equal(bTime) {
		return aTime.After(bTime)
	}
	if aGUID != bGUID {
		return aGUID > bGUID
	}
	return aVersion > bVersion
}

// LaterEntity reports whether a supersedes b.
func LaterEntity(a, b *EntityInstance) bool {
	return laterThan(a.LastModified(), b.LastModified(), a.Version, b.Version, a.GUID, b.GUID)
}

// LaterRelationship reports whether a supersedes b.
func LaterRelationship(a, b *RelationshipInstance) bool {
	return laterThan(a.LastModified(), b.LastModified(), a.Version, b.Version, a.GUID, b.GUID)
}

// LaterClassification reports whether a, found on entity aOwner, supersedes
// b, found on entity bOwner.
func LaterClassification(a Classification, aOwner string, b Classification, bOwner string) bool {
	return laterThan(a.LastModified(), b.LastModified(), a.Version, b.Version, aOwner, bOwner)
}
