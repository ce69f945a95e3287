package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/floegence/datachat-agent/internal/ai/llm"
)

// ExtractText flattens message content into trimmed plain text. Parts are concatenated
// in order; non-text parts are rendered with their default format.
func ExtractText(c llm.Content) string {
	switch v := c.(type) {
	case nil:
		return ""
	case llm.TextContent:
		return strings.TrimSpace(string(v))
	case llm.StructuredContent:
		return strings.TrimSpace(v.Text)
	case llm.PartsContent:
		var b strings.Builder
		for _, p := range v {
			switch part := p.(type) {
			case llm.TextPart:
				b.WriteString(part.Text)
			case llm.ValuePart:
				if part.Value != nil {
					b.WriteString(fmt.Sprint(part.Value))
				}
			}
		}
		return strings.TrimSpace(b.String())
	default:
		return ""
	}
}

func previewRunes(s string, maxRunes int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes]) + "..."
}

func anyToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func readInt64Field(obj map[string]any, keys ...string) int64 {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch vv := v.(type) {
		case float64:
			return int64(vv)
		case float32:
			return int64(vv)
		case int:
			return int64(vv)
		case int32:
			return int64(vv)
		case int64:
			return vv
		case json.Number:
			if n, err := vv.Int64(); err == nil {
				return n
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(vv), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

// asObject accepts the usage payload shapes providers and JSON round trips produce.
func asObject(v any) map[string]any {
	switch vv := v.(type) {
	case map[string]any:
		return vv
	case map[string]int64:
		out := make(map[string]any, len(vv))
		for k, n := range vv {
			out[k] = n
		}
		return out
	case map[string]int:
		out := make(map[string]any, len(vv))
		for k, n := range vv {
			out[k] = n
		}
		return out
	default:
		return nil
	}
}
