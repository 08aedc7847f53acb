package genai

import (
	"encoding/json"
	"strings"

	"github.com/contextiq/contextiq/internal/domain"
)

// DecodeStrict deserializes model output into v, failing closed: unknown
// fields, trailing garbage and partially valid JSON are all rejected so bad
// structured output triggers fallback instead of propagating.
func DecodeStrict(content string, v interface{}) error {
	payload := ExtractJSON(content)
	if payload == "" {
		return domain.ErrGenerationMalformed
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "generation output failed schema validation", err)
	}

	// Anything after the first JSON value means the model kept talking.
	if dec.More() {
		return domain.ErrGenerationMalformed
	}

	return nil
}

// ExtractJSON strips markdown code fences and surrounding prose, returning
// the first JSON object or array in the content. Models frequently wrap
// structured output in ```json fences even when told not to.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}

	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
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
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
