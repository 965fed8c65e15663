package chats

import (
	"encoding/base64"
	"encoding/json"
)

// CombinedCursor bundles per-account pagination cursors into the one
// opaque string handed back to the caller and round-tripped on the
// next page request.
type CombinedCursor map[string]string

// DecodeCursor parses a combined cursor string. Anything unrecognized
// or malformed degrades to an empty cursor (fetch from the start)
// rather than failing the request.
func DecodeCursor(s string) CombinedCursor {
	if s == "" {
		return CombinedCursor{}
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return CombinedCursor{}
	}
	var c CombinedCursor
	if err := json.Unmarshal(raw, &c); err != nil || c == nil {
		return CombinedCursor{}
	}
	return c
}

// Encode serializes the cursor bundle. An empty bundle encodes to "".
func (c CombinedCursor) Encode() string {
	if len(c) == 0 {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}
