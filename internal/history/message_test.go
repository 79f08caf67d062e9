package history

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestMessageMetadataFlattening(t *testing.T) {
	msg := Message{
		Role:      RoleAssistant,
		Content:   "Tell me about overfitting.",
		Timestamp: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		Metadata: map[string]any{
			"model":   "qwen",
			"latency": 1.25,
			// Reserved keys must never shadow the real fields.
			"role":    "attacker",
			"content": "overridden",
		},
	}

	data, err := sonic.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var obj map[string]any
	if err := sonic.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal as object: %v", err)
	}
	if obj["role"] != "assistant" {
		t.Errorf("role = %v, want assistant", obj["role"])
	}
	if obj["content"] != "Tell me about overfitting." {
		t.Errorf("content = %v", obj["content"])
	}
	if obj["model"] != "qwen" {
		t.Errorf("metadata key model = %v, want qwen", obj["model"])
	}
	if _, ok := obj["Metadata"]; ok {
		t.Error("metadata must be flattened, not nested")
	}

	var back Message
	if err := sonic.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal Message: %v", err)
	}
	if back.Role != RoleAssistant || back.Content != msg.Content {
		t.Errorf("round-trip lost fixed fields: %+v", back)
	}
	if !back.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("timestamp = %v, want %v", back.Timestamp, msg.Timestamp)
	}
	if back.Metadata["model"] != "qwen" {
		t.Errorf("round-trip metadata = %v", back.Metadata)
	}
	if _, ok := back.Metadata["role"]; ok {
		t.Error("reserved key leaked into recovered metadata")
	}
}

func TestMessageWithoutMetadata(t *testing.T) {
	data, err := sonic.Marshal(Message{Role: RoleUser, Content: "hi", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Message
	if err := sonic.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Metadata != nil {
		t.Errorf("Metadata = %v, want nil", back.Metadata)
	}
}
