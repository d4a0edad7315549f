package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ConversationContext is the per-session key-value blob (preferences, recalled facts).
type ConversationContext struct {
	SessionUID string
	Data       map[string]any
	UpdatedTs  int64
}

// MergeConversationContext merges Data into the stored blob at the top level;
// keys absent from Data are left untouched.
type MergeConversationContext struct {
	SessionUID string
	Data       map[string]any
	UpdatedTs  int64
}

// MarshalContextData encodes a context blob, never returning null.
func MarshalContextData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal conversation context")
	}
	return string(b), nil
}

// UnmarshalContextData decodes a stored context blob.
func UnmarshalContextData(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal conversation context")
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
