package jsonutil

import (
	"strings"
	"testing"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"single line", "```json {\"a\":1}```", `{"a":1}`},
		{"mermaid tag", "```mermaid\ngraph TD\nA-->B\n```", "graph TD\nA-->B"},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain", `{"summary":"x"}`, false},
		{"fenced", "```json\n{\"summary\":\"x\"}\n```", false},
		{"prose around json", "Here you go: {\"summary\":\"x\"}", true},
		{"array", `[1,2]`, true},
		{"garbage", "not json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := DecodeObject(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeObject(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && obj["summary"] != "x" {
				t.Errorf("DecodeObject(%q)[summary] = %v, want x", tt.in, obj["summary"])
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 300)
	if got := Preview(long, 200); len(got) != 203 {
		t.Errorf("Preview() length = %d, want 203", len(got))
	}
	if got := Preview("short", 200); got != "short" {
		t.Errorf("Preview(short) = %q", got)
	}
}
