package analysis

import (
	"sort"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"
)

func schemaFields(s *genai.Schema) []string {
	var names []string
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestBuildPrompt_SchemaPerMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want []string
	}{
		{ModeFast, []string{"actionItems", "keyTakeaways", "summary"}},
		{ModeDeep, []string{"actionItems", "keyTakeaways", "mindMapMermaid", "summary", "timestamps"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, err := BuildPrompt(tt.mode, 0)
			if err != nil {
				t.Fatalf("BuildPrompt() error = %v", err)
			}
			if p.Schema.Type != genai.TypeObject {
				t.Errorf("root type = %v, want object", p.Schema.Type)
			}
			got := schemaFields(p.Schema)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("fields = %v, want %v", got, tt.want)
			}
			required := append([]string(nil), p.Schema.Required...)
			sort.Strings(required)
			if strings.Join(required, ",") != strings.Join(tt.want, ",") {
				t.Errorf("required = %v, want %v", required, tt.want)
			}
			if p.Instruction == "" || p.SystemInstruction == "" {
				t.Error("empty instruction")
			}
		})
	}
}

func TestBuildPrompt_FastSchemaIsNotShared(t *testing.T) {
	deep, _ := BuildPrompt(ModeDeep, 0)
	fast, _ := BuildPrompt(ModeFast, 0)
	if _, ok := fast.Schema.Properties["mindMapMermaid"]; ok {
		t.Error("building the deep schema leaked fields into the fast schema")
	}
	if deep.Schema == fast.Schema {
		t.Error("schemas share a pointer")
	}
}

func TestBuildPrompt_DeepDiagramRules(t *testing.T) {
	p, err := BuildPrompt(ModeDeep, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"graph TD", "字母和数字", "()", "[]", "-->"} {
		if !strings.Contains(p.Instruction, want) {
			t.Errorf("deep instruction missing %q", want)
		}
	}
	items := p.Schema.Properties["timestamps"].Items
	if items.Properties["seconds"].Type != genai.TypeNumber {
		t.Error("timestamps.seconds should be a number")
	}
}

func TestBuildPrompt_DurationHint(t *testing.T) {
	p, err := BuildPrompt(ModeDeep, 10*time.Minute+5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.Instruction, "10:05") {
		t.Error("deep instruction does not carry the duration hint")
	}

	fast, _ := BuildPrompt(ModeFast, 10*time.Minute)
	if strings.Contains(fast.Instruction, "10:00") {
		t.Error("fast instruction should not carry a duration hint")
	}
}

func TestBuildPrompt_UnknownMode(t *testing.T) {
	if _, err := BuildPrompt(Mode("turbo"), 0); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"fast", ModeFast, false},
		{"DEEP", ModeDeep, false},
		{" deep ", ModeDeep, false},
		{"", "", true},
		{"medium", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
