package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentevent"
)

// printer writes events either as JSON lines or as one readable line per
// event. It implements broadcast.Sink.
type printer struct {
	mu       sync.Mutex
	w        io.Writer
	jsonMode bool
}

func newPrinter(w io.Writer, jsonMode bool) *printer {
	return &printer{w: w, jsonMode: jsonMode}
}

func (p *printer) Send(_ context.Context, ev agentevent.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.jsonMode {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err
	}
	_, err := fmt.Fprintf(p.w, "%5d  %-26s %s\n", ev.Sequence, ev.Type, describe(ev))
	return err
}

// describe summarizes an event payload. Payloads are typed for in-process
// runs and raw JSON for watched ones; both decode through the wire form.
func describe(ev agentevent.Event) string {
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return ""
	}
	var p struct {
		Message        string `json:"message"`
		Details        string `json:"details"`
		TaskID         string `json:"taskId"`
		QuestionTitle  string `json:"questionTitle"`
		QuestionIndex  int    `json:"questionIndex"`
		TotalQuestions int    `json:"totalQuestions"`
		IsComplete     bool   `json:"isComplete"`
		AgentState     struct {
			Status string `json:"status"`
		} `json:"agentState"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}

	switch ev.Type {
	case agentevent.TypeQuestionSchemaGenerated:
		return fmt.Sprintf("[%d/%d] %s", p.QuestionIndex, p.TotalQuestions, p.QuestionTitle)
	case agentevent.TypeStateSnapshot:
		if p.IsComplete {
			return "final status " + p.AgentState.Status
		}
		return "status " + p.AgentState.Status
	case agentevent.TypeTaskStarted, agentevent.TypeTaskCompleted, agentevent.TypeTaskFailed:
		return p.TaskID + " " + p.Message
	}
	if p.Details != "" {
		return p.Message + ": " + p.Details
	}
	return p.Message
}
