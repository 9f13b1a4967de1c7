package analysis

import (
	"fmt"
	"time"

	"github.com/fpang/video-insight/internal/assets"
	"github.com/fpang/video-insight/internal/media"
	"google.golang.org/genai"
)

// Thinking budgets per mode. Deep analysis needs room to plan the mind map.
const (
	fastThinkingBudget int32 = 1024
	deepThinkingBudget int32 = 8192
)

// Prompt is the mode-specific request shape.
type Prompt struct {
	SystemInstruction string
	Instruction       string
	Schema            *genai.Schema
	ThinkingBudget    int32
}

// BuildPrompt returns the instruction and structured-output schema for mode.
// duration, when known, is stated in the deep prompt so timestamps stay in range.
func BuildPrompt(mode Mode, duration time.Duration) (Prompt, error) {
	switch mode {
	case ModeFast:
		return Prompt{
			SystemInstruction: assets.AnalysisSystemPrompt,
			Instruction:       assets.FastAnalysisPrompt,
			Schema:            fastSchema(),
			ThinkingBudget:    fastThinkingBudget,
		}, nil
	case ModeDeep:
		var hint string
		if duration > 0 {
			hint = media.FormatClock(duration.Seconds())
		}
		return Prompt{
			SystemInstruction: assets.AnalysisSystemPrompt,
			Instruction:       assets.RenderDeepAnalysisPrompt(assets.DeepPromptData{DurationHint: hint}),
			Schema:            deepSchema(),
			ThinkingBudget:    deepThinkingBudget,
		}, nil
	default:
		return Prompt{}, fmt.Errorf("no prompt for analysis mode %q", mode)
	}
}

func stringSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func fastSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": stringSchema("视频内容概要"),
			"keyTakeaways": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"point":  stringSchema("一句话要点"),
						"detail": stringSchema("要点的具体说明"),
					},
					Required:         []string{"point", "detail"},
					PropertyOrdering: []string{"point", "detail"},
				},
			},
			"actionItems": {
				Type:  genai.TypeArray,
				Items: stringSchema("一条可执行的行动建议"),
			},
		},
		Required:         []string{"summary", "keyTakeaways", "actionItems"},
		PropertyOrdering: []string{"summary", "keyTakeaways", "actionItems"},
	}
}

func deepSchema() *genai.Schema {
	s := fastSchema()
	s.Properties["mindMapMermaid"] = stringSchema(
		"以 graph TD 开头的 Mermaid 思维导图；节点 ID 只用字母和数字，节点文字中不得出现 ()[]{}\"' 等符号")
	s.Properties["timestamps"] = &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"seconds":     {Type: genai.TypeNumber, Description: "从视频开头算起的秒数"},
				"time":        stringSchema("MM:SS 格式的时间"),
				"description": stringSchema("该时间点的内容"),
			},
			Required:         []string{"seconds", "time", "description"},
			PropertyOrdering: []string{"seconds", "time", "description"},
		},
	}
	s.Required = append(s.Required, "mindMapMermaid", "timestamps")
	s.PropertyOrdering = []string{"summary", "keyTakeaways", "timestamps", "mindMapMermaid", "actionItems"}
	return s
}
