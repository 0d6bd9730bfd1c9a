package messagequeue

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr string
	}{
		{"valid event", "formlink.events.f1", `{"type":"task_started","sequence":3,"formId":"f1"}`, ""},
		{"unknown subject passes", "other.subject", `{"anything":true}`, ""},
		{"invalid json", "formlink.events.f1", `{not json`, "invalid JSON"},
		{"unknown type", "formlink.events.f1", `{"type":"agent_dancing","sequence":3,"formId":"f1"}`, "unknown event type"},
		{"zero sequence", "formlink.events.f1", `{"type":"task_started","sequence":0,"formId":"f1"}`, "sequence must be positive"},
		{"form mismatch", "formlink.events.f1", `{"type":"task_started","sequence":1,"formId":"f2"}`, "does not match subject"},
		{"wrong field type", "formlink.events.f1", `{"type":"task_started","sequence":"x","formId":"f1"}`, "schema validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEventSubject(t *testing.T) {
	if got := EventSubject("", "f1"); got != "formlink.events.f1" {
		t.Errorf("EventSubject default = %s", got)
	}
	if got := EventSubject("custom.prefix", "f1"); got != "custom.prefix.f1" {
		t.Errorf("EventSubject custom = %s", got)
	}
}
