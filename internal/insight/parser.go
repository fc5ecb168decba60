package insight

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/insight-engine/internal/domain"
)

// The model is told to answer with raw JSON, but in practice replies arrive
// fenced, wrapped in an {"insights": ...} envelope, or as a bare object where
// an array was requested. Decoding is therefore a fixed fallback chain:
// array -> "insights" wrapper -> single object wrapped in a one-element
// array -> ParseError. Nothing here is implicit.

// ParseCandidates decodes an Alert/Advice-mode reply into insight candidates.
// Missing "type" defaults to Advice; "category" is optional. Title and body
// are required per element.
func ParseCandidates(raw string) ([]domain.InsightCandidate, error) {
	items, err := extractItems(raw)
	if err != nil {
		return nil, err
	}

	out := make([]domain.InsightCandidate, 0, len(items))
	for i, item := range items {
		title := stringField(item, "title")
		body := stringField(item, "body")
		if title == "" || body == "" {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("element %d is missing title or body", i)}
		}
		out = append(out, domain.InsightCandidate{
			Type:     domain.ParseInsightType(stringField(item, "type")),
			Title:    title,
			Body:     body,
			Category: stringField(item, "category"),
		})
	}
	return out, nil
}

// ParseTips decodes a UI-tips-mode reply. Missing "icon" defaults to
// "default"; elements without text are skipped.
func ParseTips(raw string) ([]domain.UITip, error) {
	items, err := extractItems(raw)
	if err != nil {
		return nil, err
	}

	out := make([]domain.UITip, 0, len(items))
	for _, item := range items {
		text := stringField(item, "text")
		if text == "" {
			continue
		}
		icon := stringField(item, "icon")
		if icon == "" {
			icon = "default"
		}
		out = append(out, domain.UITip{Text: text, Icon: icon})
	}
	return out, nil
}

// ParseReportSections decodes a report-mode reply. Sections without text are
// skipped; a missing category becomes "General".
func ParseReportSections(raw string) ([]domain.ReportSection, error) {
	items, err := extractItems(raw)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ReportSection, 0, len(items))
	for _, item := range items {
		text := stringField(item, "text")
		if text == "" {
			continue
		}
		category := stringField(item, "category")
		if category == "" {
			category = "General"
		}
		out = append(out, domain.ReportSection{Category: category, Text: text})
	}
	return out, nil
}

// extractItems cleans the raw reply and applies the decode fallback chain.
func extractItems(raw string) ([]map[string]interface{}, error) {
	clean := stripFences(raw)
	if clean == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("empty reply after cleanup")}
	}

	// 1) JSON array of objects.
	var arr []map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &arr); err == nil {
		return arr, nil
	}

	// 2) Single object: either the {"insights": [...]} wrapper the tips and
	// report prompts demand, or a bare element the model forgot to wrap.
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &obj); err != nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("reply is neither a JSON array nor object: %w", err)}
	}

	if wrapped, ok := obj["insights"].([]interface{}); ok {
		out := make([]map[string]interface{}, 0, len(wrapped))
		for i, item := range wrapped {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, &ParseError{Raw: raw, Err: fmt.Errorf("insights element %d is %T, want object", i, item)}
			}
			out = append(out, m)
		}
		return out, nil
	}

	return []map[string]interface{}{obj}, nil
}

// stripFences removes a leading/trailing triple-backtick fence, tolerating a
// language tag and surrounding noise. Clean input passes through unchanged.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)

	fenced := strings.HasPrefix(s, "```")
	if fenced {
		// Drop the opening fence line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSpace(s)
	}

	// Strip the closing fence only when an opening fence was present. An
	// unfenced reply may legitimately contain backticks inside its strings.
	if fenced {
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
			s = strings.TrimSpace(s)
		}
	}

	// If noise still surrounds the JSON, keep the outermost bracketed span.
	start := strings.IndexAny(s, "[{")
	if start > 0 {
		closer := "]"
		if s[start] == '{' {
			closer = "}"
		}
		if end := strings.LastIndex(s, closer); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
