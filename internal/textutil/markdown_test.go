package textutil

import "testing"

func TestStripMarkdown(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "Hello there.", "Hello there."},
		{"code block removed", "Before\n```go\nfmt.Println(1)\n```\nAfter", "Before\n\nAfter"},
		{"inline code unwrapped", "run `ls -la` now", "run ls -la now"},
		{"bold unwrapped", "this is **important** text", "this is important text"},
		{"italic unwrapped", "this is *subtle* text", "this is subtle text"},
		{"header stripped", "# Title\nBody", "Title\nBody"},
		{"link keeps label", "see [the docs](https://example.com) here", "see the docs here"},
		{"image keeps alt", "![a cat](cat.png)", "a cat"},
		{"blockquote stripped", "> quoted line", "quoted line"},
		{"bullet stripped", "- first\n- second", "first\nsecond"},
		{"numbered stripped", "1. first\n2. second", "first\nsecond"},
		{"strikethrough unwrapped", "old ~~gone~~ new", "old gone new"},
		{"underscore in word kept", "snake_case_name stays", "snake_case_name stays"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripMarkdown(tc.input); got != tc.want {
				t.Errorf("StripMarkdown(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
