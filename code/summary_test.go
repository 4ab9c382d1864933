package code

import (
	"strings"
	"testing"
)

func TestSummarize(t *testing.T) {
	small := []any{"a", map[string]any{"k": 1}}
	if got := Summarize(small, 1500); len(got) != 2 {
		t.Errorf("Summarize(small) = %v, want unchanged", got)
	}

	if got := Summarize(nil, 1500); got == nil || len(got) != 0 {
		t.Errorf("Summarize(nil) = %#v, want empty non-nil", got)
	}

	var big []any
	for i := 0; i < 10; i++ {
		big = append(big, strings.Repeat("z", 200))
	}
	got := Summarize(big, 1500)
	if len(got) != 1 {
		t.Fatalf("Summarize(big) = %d entries, want 1", len(got))
	}
	sum := got[0].(LogSummary)
	if !sum.Summary || sum.TotalLogs != 10 || sum.Limit != 1500 {
		t.Errorf("summary = %+v", sum)
	}
	// 10 quoted strings of 200, 9 commas, 2 brackets.
	if sum.TotalChars != 10*202+9+2 {
		t.Errorf("TotalChars = %d, want %d", sum.TotalChars, 10*202+9+2)
	}
	if len(sum.Preview) != 3 {
		t.Errorf("Preview = %d entries, want 3", len(sum.Preview))
	}
	if sum.Hint == "" {
		t.Error("Hint is empty")
	}
}

func TestSummarize_Boundary(t *testing.T) {
	// ["xxxx"] is 8 characters.
	logs := []any{"xxxx"}
	if got := Summarize(logs, 8); len(got) != 1 || got[0] != "xxxx" {
		t.Errorf("Summarize at limit = %v, want unchanged", got)
	}
	if _, ok := Summarize(logs, 7)[0].(LogSummary); !ok {
		t.Error("Summarize over limit did not summarize")
	}
}

func TestSummarize_UnencodableEntries(t *testing.T) {
	logs := []any{"ok", func() {}}
	got := Summarize(logs, 1500)
	if len(got) != 2 {
		t.Fatalf("Summarize() = %v", got)
	}
	if _, ok := got[1].(string); !ok {
		t.Errorf("got[1] = %T, want string", got[1])
	}
}

func TestTruncateChars(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := truncateChars(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateChars(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestMarshalCompact_NoHTMLEscape(t *testing.T) {
	data, err := marshalCompact(map[string]any{"a": "<b>&"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":"<b>&"}` {
		t.Errorf("marshalCompact() = %s", data)
	}
}
