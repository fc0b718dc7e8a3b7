package database

import "encoding/json"

// JSONArg converts a raw JSON document into a query argument accepted by both
// JSONB (lib/pq sends []byte as bytea) and MySQL JSON columns. Empty input
// becomes a JSON null.
func JSONArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
