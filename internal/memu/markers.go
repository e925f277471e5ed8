package memu

import (
	"regexp"

	"github.com/tidwall/gjson"
)

var recordIDPattern = regexp.MustCompile(`record_id=([a-zA-Z0-9\-]+)`)

// ExtractRecordIDs walks every string value of a retrieve response and
// collects embedded record_id=<id> markers in first-seen order. Malformed
// JSON yields nil.
func ExtractRecordIDs(raw []byte) []string {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil
	}

	var ids []string
	seen := make(map[string]struct{})
	walkStrings(gjson.ParseBytes(raw), func(s string) {
		for _, m := range recordIDPattern.FindAllStringSubmatch(s, -1) {
			id := m[1]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	})

	return ids
}

func walkStrings(value gjson.Result, visit func(string)) {
	switch value.Type {
	case gjson.String:
		visit(value.Str)
	case gjson.JSON:
		value.ForEach(func(_, child gjson.Result) bool {
			walkStrings(child, visit)
			return true
		})
	case gjson.Null, gjson.False, gjson.True, gjson.Number:
	}
}
