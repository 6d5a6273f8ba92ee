package httpapi

import "encoding/json"

// mustJSON marshals v, falling back to an empty object on the (practically
// unreachable) marshal failure rather than panicking mid-response.
func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
