package service

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agentstate"
	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/question"
)

const maxPromptInputLen = 10000

// sanitizePromptInput strips control characters and role markers from
// user-supplied text before it is embedded in a prompt, and caps its length.
func sanitizePromptInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.ToLower(line))
		for _, prefix := range []string{
			"system:", "assistant:", "user:", "[system]", "[assistant]",
			"<|system|>", "<|assistant|>", "<|im_start|>",
			"### system", "### assistant", "### instruction",
		} {
			if strings.HasPrefix(trimmed, prefix) {
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	s = strings.Join(lines, "\n")

	if len(s) > maxPromptInputLen {
		s = s[:maxPromptInputLen] + "\n[truncated]"
	}
	return s
}

const planSystemPrompt = `You design data-collection forms. Given a request, decide the form title, a one-sentence description, an optional journey script describing what the respondent sees after submitting, and the ordered list of questions.

Rules:
- Output a single JSON object matching the provided schema.
- Each question detail has the question text and one question type from the allowed list.
- Ask only what the request needs; avoid duplicate questions.`

const questionSystemPrompt = `You write the content of one form question. Output a single JSON object matching the provided schema. Keep wording short and neutral. Only fill fields that apply to the question type.`

const repairSystemPrompt = `You fix form question collections that failed validation. Return the complete corrected collection as a JSON object matching the provided schema. Keep every question id, order and type unchanged and change only what the listed issues require.`

const resultsPageSystemPrompt = `You write the instructions for the page a respondent sees after submitting a form. Output a JSON object with a single "content" field holding short markdown.`

func buildPlanPrompt(content string, settings map[string]any) string {
	var b strings.Builder
	b.WriteString("Request:\n")
	b.WriteString(sanitizePromptInput(content))
	b.WriteString("\n\nAllowed question types: ")
	names := make([]string, len(question.Types))
	for i, t := range question.Types {
		names[i] = string(t)
	}
	b.WriteString(strings.Join(names, ", "))
	if len(settings) > 0 {
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n\nForm settings:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, settings[k])
		}
	}
	return b.String()
}

func buildQuestionPrompt(s *agentstate.State, d agenttask.GenerateQuestionSchema) string {
	var b strings.Builder
	if s.FormMetadata != nil {
		fmt.Fprintf(&b, "Form: %s\n%s\n\n", s.FormMetadata.Title, s.FormMetadata.Description)
	}
	fmt.Fprintf(&b, "Question %d (%s): %s\n", d.Order, d.Type, sanitizePromptInput(d.Title))
	b.WriteString("\nOriginal request for context:\n")
	b.WriteString(sanitizePromptInput(s.NormalizedInputContent))
	return b.String()
}

func buildRepairPrompt(collection []byte, issues []question.Issue) string {
	var b strings.Builder
	b.WriteString("Validation issues:\n")
	b.WriteString(question.FormatIssues(issues))
	b.WriteString("\n\nCollection:\n")
	b.Write(collection)
	return b.String()
}

func buildResultsPagePrompt(s *agentstate.State, questions []question.Schema) string {
	var b strings.Builder
	if s.FormMetadata != nil {
		fmt.Fprintf(&b, "Form: %s\n%s\n\n", s.FormMetadata.Title, s.FormMetadata.Description)
	}
	b.WriteString("Questions:\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "- %s (%s)\n", q.Title, q.Type)
	}
	return b.String()
}
