package model

// Well-known type names used to record duplicate clusters in the store.
const (
	KnownDuplicateClassification        = "KnownDuplicate"
	ConsolidatedDuplicateClassification = "ConsolidatedDuplicate"
	MementoClassification               = "Memento"

	PeerDuplicateLinkType         = "PeerDuplicateLink"
	ConsolidatedDuplicateLinkType = "ConsolidatedDuplicateLink"

	// StatusIdentifierProperty carries the review status of a duplicate
	// link or a consolidated entity.
	StatusIdentifierProperty = "statusIdentifier"
)

// IsDuplicateBookkeeping reports whether typeName is one of the link types
// that record cluster membership rather than domain edges.
func IsDuplicateBookkeeping(typeName string) bool {
	return typeName == PeerDuplicateLinkType || typeName == ConsolidatedDuplicateLinkType
}
