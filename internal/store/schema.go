package store

const createPositionsTable = `
	CREATE TABLE IF NOT EXISTS replication_stream_positions (
		stream_name   TEXT   NOT NULL,
		instance_name TEXT   NOT NULL,
		stream_id     BIGINT NOT NULL,
		PRIMARY KEY (stream_name, instance_name)
	)
`

const upsertPosition = `
	INSERT INTO replication_stream_positions (stream_name, instance_name, stream_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (stream_name, instance_name)
	DO UPDATE SET stream_id = GREATEST(replication_stream_positions.stream_id, EXCLUDED.stream_id)
`

const selectPositions = `
	SELECT stream_name, instance_name, stream_id FROM replication_stream_positions
`

const selectEvent = `
	SELECT e.event_id, e.room_id, e.type, e.state_key, e.sender, e.stream_ordering,
	       COALESCE(r.reason, ''), ej.json
	FROM events e
	LEFT JOIN rejections r USING (event_id)
	LEFT JOIN event_json ej USING (event_id)
	WHERE e.event_id = $1
`
