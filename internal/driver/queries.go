package driver

// Times are stored as epoch milliseconds. Property sets and classifications
// are stored as JSON strings so the effectivity window travels with them.
const (
	SaveEntityQuery = `
		MERGE (n:Entity {guid: $guid})
		SET n.type_name = $type_name,
			n.status = $status,
			n.properties = $properties,
			n.classifications = $classifications,
			n.unique_properties = $unique_properties,
			n.created_by = $created_by,
			n.updated_by = $updated_by,
			n.create_time = $create_time,
			n.update_time = $update_time,
			n.version = $version,
			n.is_proxy = $is_proxy
		RETURN n.guid AS guid
	`

	SaveRelationshipQuery = `
		MATCH (end1:Entity {guid: $end1_guid})
		MATCH (end2:Entity {guid: $end2_guid})
		MERGE (end1)-[r:RELATIONSHIP {guid: $guid}]->(end2)
		SET r.type_guid = $type_guid,
			r.type_name = $type_name,
			r.status = $status,
			r.properties = $properties,
			r.created_by = $created_by,
			r.updated_by = $updated_by,
			r.create_time = $create_time,
			r.update_time = $update_time,
			r.version = $version
		RETURN r.guid AS guid
	`

	GetEntityQuery = `
		MATCH (n:Entity {guid: $guid})
		WHERE $as_of IS NULL OR n.create_time <= $as_of
		RETURN n.guid AS guid,
			n.type_name AS type_name,
			n.status AS status,
			n.properties AS properties,
			n.classifications AS classifications,
			n.unique_properties AS unique_properties,
			n.created_by AS created_by,
			n.updated_by AS updated_by,
			n.create_time AS create_time,
			n.update_time AS update_time,
			n.version AS version,
			n.is_proxy AS is_proxy
	`

	GetRelationshipsForEntityQuery = `
		MATCH (end1:Entity)-[r:RELATIONSHIP]->(end2:Entity)
		WHERE (end1.guid = $guid OR end2.guid = $guid)
			AND ($type_guid = "" OR r.type_guid = $type_guid)
			AND ($type_name = "" OR r.type_name = $type_name)
			AND (size($statuses) = 0 OR r.status IN $statuses)
			AND ($as_of IS NULL OR r.create_time <= $as_of)
		RETURN r.guid AS guid,
			r.type_guid AS type_guid,
			r.type_name AS type_name,
			r.status AS status,
			r.properties AS properties,
			r.created_by AS created_by,
			r.updated_by AS updated_by,
			r.create_time AS create_time,
			r.update_time AS update_time,
			r.version AS version,
			end1.guid AS end1_guid,
			end1.type_name AS end1_type_name,
			end1.properties AS end1_properties,
			end1.unique_properties AS end1_unique_properties,
			end2.guid AS end2_guid,
			end2.type_name AS end2_type_name,
			end2.properties AS end2_properties,
			end2.unique_properties AS end2_unique_properties
		ORDER BY r.guid
		SKIP $skip
		LIMIT $limit
	`
)
