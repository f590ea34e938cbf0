package memory

import (
	"bytes"
	"encoding/json"
)

// payloadEqual compares payloads the way the JSONB column would.
func payloadEqual(a, b map[string]any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
