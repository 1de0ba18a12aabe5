package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "empty", text: "", limit: 10, want: nil},
		{name: "fits", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "exact limit", text: "0123456789", limit: 10, want: []string{"0123456789"}},
		{name: "hard cut", text: "0123456789abc", limit: 5, want: []string{"01234", "56789", "abc"}},
		{name: "newlines are not break points", text: "abc\ndefgh\nij", limit: 8, want: []string{"abc\ndefg", "h\nij"}},
		{name: "multibyte", text: "ппппппп", limit: 3, want: []string{"ппп", "ппп", "п"}},
		{name: "no limit", text: "abc", limit: 0, want: []string{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, tt.limit)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SplitMessage() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitMessageLossless(t *testing.T) {
	body := strings.Repeat("x", 4500)
	chunks := SplitMessage(body, DefaultMessageLimit)

	if diff := cmp.Diff(3, len(chunks)); diff != "" {
		t.Fatalf("chunk count mismatch (-want +got):\n%s", diff)
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > DefaultMessageLimit {
			t.Errorf("chunk %d has %d characters", i, n)
		}
	}
	if diff := cmp.Diff(body, strings.Join(chunks, "")); diff != "" {
		t.Errorf("joined chunks mismatch (-want +got):\n%s", diff)
	}

	// A newline near the start must not cost an extra chunk.
	early := "a\n" + strings.Repeat("b", 4498)
	var lens []int
	for _, c := range SplitMessage(early, DefaultMessageLimit) {
		lens = append(lens, utf8.RuneCountInString(c))
	}
	if diff := cmp.Diff([]int{2000, 2000, 500}, lens); diff != "" {
		t.Errorf("chunk lengths mismatch (-want +got):\n%s", diff)
	}

	lines := strings.Repeat("line of text\n", 400)
	if diff := cmp.Diff(lines, strings.Join(SplitMessage(lines, 100), "")); diff != "" {
		t.Errorf("joined line chunks mismatch (-want +got):\n%s", diff)
	}
}
