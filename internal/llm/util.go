package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// Text concatenates the text blocks of resp, skipping tool-use and
// other non-text content.
func Text(resp *Response) string {
	if resp == nil || len(resp.Content) == 0 {
		return ""
	}
	if len(resp.Content) == 1 && resp.Content[0].Type == "text" {
		return resp.Content[0].Text
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type != "text" {
			continue
		}
		sb.WriteString(b.Text)
	}
	return sb.String()
}

// stripCodeFence removes a surrounding markdown code fence, with or
// without a language tag, leaving the fenced body.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		lang := strings.TrimSpace(body[:nl])
		if lang == "" || !strings.ContainsAny(lang, "{}") {
			body = body[nl+1:]
		}
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// firstJSONObject returns the first balanced {...} in s. The scan is
// string-aware, so braces inside JSON strings do not end the object.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSON extracts the first JSON object from raw model output into
// out. Code fences and surrounding prose are tolerated.
func ParseJSON(raw string, out any) error {
	s := stripCodeFence(strings.TrimSpace(raw))
	if s == "" {
		return errors.New("empty output")
	}
	obj, ok := firstJSONObject(s)
	if !ok {
		return errors.New("missing JSON object")
	}
	return json.Unmarshal([]byte(obj), out)
}
