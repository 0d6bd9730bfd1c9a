package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"prompt", []string{"-prompt", "a survey"}, false},
		{"missing prompt", nil, true},
		{"watch needs form", []string{"-watch"}, true},
		{"watch", []string{"-watch", "-form", "f1"}, false},
		{"list models", []string{"-list-models"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseOptions(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && o.formID == "" {
				t.Error("form id must default to a new UUID")
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	s := agentstate.New("f1", "u1", agentstate.InputPrompt, "x", nil)
	s.Status = agentstate.StatusCompleted
	em := agentevent.ForState(&s)
	events := []agentevent.Event{
		em.QuestionGenerated("Your name", 1, 3),
		em.Error("Form generation failed", "plan: boom"),
		em.Snapshot(s, true),
	}

	var pretty bytes.Buffer
	p := newPrinter(&pretty, false)
	for _, ev := range events {
		if err := p.Send(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"[1/3] Your name", "Form generation failed: plan: boom", "final status COMPLETED"} {
		if !strings.Contains(pretty.String(), want) {
			t.Errorf("pretty output misses %q:\n%s", want, pretty.String())
		}
	}

	var lines bytes.Buffer
	p = newPrinter(&lines, true)
	for _, ev := range events {
		_ = p.Send(context.Background(), ev)
	}
	out := strings.Split(strings.TrimSpace(lines.String()), "\n")
	if len(out) != 3 {
		t.Fatalf("expected 3 JSON lines, got %d", len(out))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(out[0]), &first); err != nil || first["type"] != "question_schema_generated" {
		t.Errorf("first line %s (%v)", out[0], err)
	}
}

func TestDescribeRawPayload(t *testing.T) {
	ev := agentevent.Event{
		Type:    agentevent.TypeTaskFailed,
		Payload: json.RawMessage(`{"taskId":"t1","message":"timeout"}`),
	}
	if got := describe(ev); got != "t1 timeout" {
		t.Errorf("describe = %q", got)
	}
}
