package memu

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	DefaultContextChars = 4000

	maxContextItems = 10
	maxItemChars    = 800
	maxAnswerChars  = 2000
)

var contextListKeys = []string{"memories", "items", "resources", "categories"}

// FormatForWriting flattens a retrieve response into plain text suitable for
// a writing prompt. Responses carrying an error field produce "".
func FormatForWriting(raw []byte, maxChars int) string {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return ""
	}
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return ""
	}
	if e := root.Get("error"); e.Exists() && e.Type != gjson.Null && e.String() != "" {
		return ""
	}

	var parts []string
	for _, key := range contextListKeys {
		list := root.Get(key)
		if !list.IsArray() {
			continue
		}
		for i, item := range list.Array() {
			if i >= maxContextItems {
				break
			}
			if content := itemContent(item); content != "" {
				parts = append(parts, truncateRunes(content, maxItemChars))
			}
		}
	}

	answer := root.Get("answer")
	if !answer.Exists() || answer.Type == gjson.Null || answer.String() == "" {
		answer = root.Get("summary")
	}
	if s := valueText(answer); s != "" {
		parts = append(parts, truncateRunes(s, maxAnswerChars))
	}

	text := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if len([]rune(text)) > maxChars {
		text = truncateRunes(text, maxChars) + "\n..."
	}
	return text
}

func itemContent(item gjson.Result) string {
	if !item.IsObject() {
		return valueText(item)
	}
	if mem := item.Get("memory"); mem.IsObject() {
		return valueText(mem.Get("content"))
	}
	for _, key := range []string{"content", "summary", "description"} {
		if s := valueText(item.Get(key)); s != "" {
			return s
		}
	}
	return item.Raw
}

func valueText(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	case gjson.JSON:
		return v.Raw
	default:
		if !v.Exists() {
			return ""
		}
		return v.String()
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
