package driver

// Instances are stored whole as JSON in body; the indexed columns exist only
// for lookup.
const (
	createEntities = `CREATE TABLE IF NOT EXISTS entities (
    guid TEXT PRIMARY KEY,
    type_name TEXT NOT NULL,
    status TEXT NOT NULL,
    is_proxy INTEGER NOT NULL DEFAULT 0,
    create_time INTEGER NOT NULL,
    body TEXT NOT NULL
);`

	createRelationships = `CREATE TABLE IF NOT EXISTS relationships (
    guid TEXT PRIMARY KEY,
    type_guid TEXT NOT NULL DEFAULT '',
    type_name TEXT NOT NULL,
    status TEXT NOT NULL,
    end1_guid TEXT NOT NULL,
    end2_guid TEXT NOT NULL,
    create_time INTEGER NOT NULL,
    body TEXT NOT NULL
);`

	createRelationshipsEnd1Index = `CREATE INDEX IF NOT EXISTS idx_relationships_end1 ON relationships(end1_guid);`
	createRelationshipsEnd2Index = `CREATE INDEX IF NOT EXISTS idx_relationships_end2 ON relationships(end2_guid);`
)

var schemaStatements = []string{
	createEntities,
	createRelationships,
	createRelationshipsEnd1Index,
	createRelationshipsEnd2Index,
}
