package ingest

import "encoding/json"

// DecodePayload parses a webhook response body into key-value records.
// Three top-level shapes are accepted: a bare array of records,
// {"data": [...]}, or {"body": [...]}. Anything else is a ParseError.
func DecodePayload(body []byte) ([]RawRecord, error) {
	var bare []map[string]any
	if err := json.Unmarshal(body, &bare); err == nil {
		return keyValueRecords(bare), nil
	}

	var wrapped struct {
		Data []map[string]any `json:"data"`
		Body []map[string]any `json:"body"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, &ParseError{Reason: "unexpected webhook payload", Err: err}
	}
	switch {
	case wrapped.Data != nil:
		return keyValueRecords(wrapped.Data), nil
	case wrapped.Body != nil:
		return keyValueRecords(wrapped.Body), nil
	}
	return nil, &ParseError{Reason: "webhook payload has no data or body array"}
}

func keyValueRecords(records []map[string]any) []RawRecord {
	out := make([]RawRecord, 0, len(records))
	for _, fields := range records {
		out = append(out, RawRecord{Fields: fields})
	}
	return out
}
