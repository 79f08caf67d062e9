// Package history implements the conversation store at the heart of the
// interview assistant: per-session message lists, JSON snapshot persistence,
// and the LLM context-window logic that turns stored history into completion
// requests.
package history

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn. Metadata holds optional caller
// supplied attributes that are merged flat into the JSON object alongside the
// three fixed keys.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// Keys with fixed meaning in the serialized form. Metadata entries using
// these names are dropped on marshal rather than shadowing the real fields.
const (
	keyRole      = "role"
	keyContent   = "content"
	keyTimestamp = "timestamp"
)

// MarshalJSON flattens Metadata into the same JSON object as the fixed
// role/content/timestamp keys.
func (m Message) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.Metadata)+3)
	for k, v := range m.Metadata {
		switch k {
		case keyRole, keyContent, keyTimestamp:
			continue
		}
		obj[k] = v
	}
	obj[keyRole] = string(m.Role)
	obj[keyContent] = m.Content
	obj[keyTimestamp] = m.Timestamp.Format(time.RFC3339Nano)
	return sonic.Marshal(obj)
}

// UnmarshalJSON recovers the fixed fields and collects every remaining key
// back into Metadata.
func (m *Message) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := sonic.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("history: unmarshal message: %w", err)
	}

	if v, ok := obj[keyRole].(string); ok {
		m.Role = Role(v)
	}
	if v, ok := obj[keyContent].(string); ok {
		m.Content = v
	}
	if v, ok := obj[keyTimestamp].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.Timestamp = ts
		}
	}

	delete(obj, keyRole)
	delete(obj, keyContent)
	delete(obj, keyTimestamp)
	if len(obj) > 0 {
		m.Metadata = obj
	} else {
		m.Metadata = nil
	}
	return nil
}
