package litellm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kyashrathore/formlink-sub001/internal/port/completion"
)

var _ completion.Service = (*Client)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerateStructured implements completion.Service.
func (c *Client) GenerateStructured(ctx context.Context, req completion.Request) (json.RawMessage, error) {
	body, err := chatBody(req, false)
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	err = c.call(ctx, func(ctx context.Context) error {
		httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
		if err != nil {
			return err
		}
		resp, err := c.llmClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}

		var cr chatResponse
		if err := json.Unmarshal(data, &cr); err != nil {
			return fmt.Errorf("unmarshal completion: %w", err)
		}
		if len(cr.Choices) == 0 {
			return fmt.Errorf("%w: no choices", completion.ErrMalformedOutput)
		}
		slog.Debug("completion done",
			"model", cr.Model,
			"schema", req.SchemaName,
			"tokens_in", cr.Usage.PromptTokens,
			"tokens_out", cr.Usage.CompletionTokens,
			"finish_reason", cr.Choices[0].FinishReason,
		)

		out, err = DecodeObject(cr.Choices[0].Message.Content)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", req.SchemaName, err)
	}
	return out, nil
}

// StreamStructured implements completion.Service over the proxy's
// server-sent event stream. Each chunk is appended to the running text,
// which is repaired into the best current object and reported to
// onPartial when it changed.
func (c *Client) StreamStructured(ctx context.Context, req completion.Request, onPartial completion.PartialFunc) (json.RawMessage, error) {
	body, err := chatBody(req, true)
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	err = c.call(ctx, func(ctx context.Context) error {
		httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Accept", "text/event-stream")
		resp, err := c.llmClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}

		var acc strings.Builder
		var last json.RawMessage
		r := bufio.NewReader(resp.Body)
		for {
			line, readErr := r.ReadString('\n')
			done, err := consumeLine(strings.TrimSpace(line), &acc)
			if err != nil {
				return err
			}
			if !done && onPartial != nil && acc.Len() > 0 {
				if p, perr := DecodeObject(acc.String()); perr == nil && !bytes.Equal(p, last) {
					last = p
					if err := onPartial(p); err != nil {
						return fmt.Errorf("partial callback: %w", err)
					}
				}
			}
			if done || errors.Is(readErr, io.EOF) {
				break
			}
			if readErr != nil {
				return fmt.Errorf("read stream: %w", readErr)
			}
		}

		out, err = DecodeObject(acc.String())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", req.SchemaName, err)
	}
	return out, nil
}

// consumeLine handles one SSE line. It reports done on the [DONE] marker.
func consumeLine(line string, acc *strings.Builder) (done bool, err error) {
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return false, nil // blank separators, comments, event names
	}
	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return true, nil
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return false, fmt.Errorf("unmarshal stream chunk: %w", err)
	}
	for _, ch := range chunk.Choices {
		acc.WriteString(ch.Delta.Content)
	}
	return false, nil
}

// call runs fn inside the pool slot, the per-call deadline and the breaker.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.pool.Run(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		if c.breaker == nil {
			return fn(callCtx)
		}
		return c.breaker.Execute(func() error { return fn(callCtx) })
	})
}

func chatBody(req completion.Request, stream bool) ([]byte, error) {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	cr := chatRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		cr.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaSpec{Name: name, Schema: req.Schema},
		}
	} else {
		cr.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}
	return body, nil
}

// DecodeObject turns model output into a compact JSON object. Markdown
// fences and surrounding prose are stripped; invalid or truncated JSON is
// repaired. Output that still is not an object yields ErrMalformedOutput.
func DecodeObject(content string) (json.RawMessage, error) {
	s := extractJSON(content)
	if s == "" {
		return nil, fmt.Errorf("%w: empty output", completion.ErrMalformedOutput)
	}
	if !json.Valid([]byte(s)) {
		repaired, err := jsonrepair.JSONRepair(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", completion.ErrMalformedOutput, err)
		}
		s = repaired
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, fmt.Errorf("%w: %v", completion.ErrMalformedOutput, err)
	}
	if buf.Len() == 0 || buf.Bytes()[0] != '{' {
		return nil, fmt.Errorf("%w: not an object", completion.ErrMalformedOutput)
	}
	return buf.Bytes(), nil
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	for _, fence := range []string{"```json", "```"} {
		if rest, ok := strings.CutPrefix(s, fence); ok {
			if idx := strings.LastIndex(rest, "```"); idx >= 0 {
				rest = rest[:idx]
			}
			return strings.TrimSpace(rest)
		}
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return s
	}
	if end := strings.LastIndex(s, "}"); end > start && json.Valid([]byte(s[start:end+1])) {
		return s[start : end+1]
	}
	return s[start:] // truncated or broken; left to repair
}
