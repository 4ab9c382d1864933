package code

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Size budgets.
const (
	// DefaultMaxLogChars is the serialized size above which a run's logs
	// are replaced by a LogSummary.
	DefaultMaxLogChars = 1500

	// DefaultMaxResultChars is the serialized size above which a capability
	// result is written to the workspace instead of returned inline.
	DefaultMaxResultChars = 500
)

const (
	summaryPreviewEntries = 3
	savedPreviewChars     = 200
	truncatedPreviewChars = 1000
	summaryHint           = "Use workspace.write() to save large outputs, then read on demand."
)

// Summarize returns logs unchanged if their serialized size is within limit
// characters, otherwise a single LogSummary carrying the true count and
// size and a preview of the first entries.
func Summarize(logs []any, limit int) []any {
	if logs == nil {
		logs = []any{}
	}
	if limit <= 0 {
		limit = DefaultMaxLogChars
	}
	data, err := marshalCompact(logs)
	if err != nil {
		logs = stringifyEntries(logs)
		data, _ = marshalCompact(logs)
	}
	size := utf8.RuneCount(data)
	if size <= limit {
		return logs
	}
	n := min(summaryPreviewEntries, len(logs))
	return []any{LogSummary{
		Summary:    true,
		TotalLogs:  len(logs),
		TotalChars: size,
		Limit:      limit,
		Preview:    append([]any{}, logs[:n]...),
		Hint:       summaryHint,
	}}
}

// marshalCompact encodes v as JSON without HTML escaping or a trailing
// newline, so sizes match what a JSON consumer would count.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// stringifyEntries replaces entries that cannot be encoded with their
// fmt representation.
func stringifyEntries(logs []any) []any {
	out := make([]any, len(logs))
	for i, entry := range logs {
		if _, err := marshalCompact(entry); err != nil {
			out[i] = fmt.Sprint(entry)
			continue
		}
		out[i] = entry
	}
	return out
}

// truncateChars returns the first n characters of s.
func truncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
