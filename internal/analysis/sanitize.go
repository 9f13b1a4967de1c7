package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fpang/video-insight/internal/jsonutil"
	"github.com/fpang/video-insight/internal/media"
	"github.com/rs/zerolog/log"
)

// Placeholders substituted for fields the model left out or got wrong.
const (
	PlaceholderSummary = "暂无摘要"
	PlaceholderPoint   = "要点"
	PlaceholderDetail  = "暂无详细说明"

	// PlaceholderMindMap is a two-node diagram the renderer always accepts.
	PlaceholderMindMap = "graph TD\n  A[视频内容] --> B[暂无思维导图]"

	mindMapRoot = "graph TD"
)

// Sanitize turns raw model output into a Result for mode.
//
// Empty text is a KindGeneration error. The text is decoded directly, then
// once more with markdown fences stripped; if both fail it is a KindParse
// error. Past that point nothing fails: each field is coerced on its own and
// replaced with a default when it is missing or the wrong shape.
func Sanitize(raw string, mode Mode) (*Result, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("sanitize: unknown analysis mode %q", mode)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, newError(KindGeneration, nil, "model returned an empty response")
	}

	doc, err := jsonutil.DecodeObject(raw)
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Msg("Failed to parse analysis response")
		return nil, newError(KindParse, err, "response is not a JSON object")
	}

	result := &Result{
		Mode:         mode,
		Summary:      summaryField(doc["summary"]),
		KeyTakeaways: keyTakeawaysField(doc["keyTakeaways"]),
		ActionItems:  actionItemsField(doc["actionItems"]),
		Timestamps:   []Timestamp{},
	}

	switch mode {
	case ModeDeep:
		result.Timestamps = timestampsField(doc["timestamps"])
		result.MindMapMermaid = mindMapField(doc["mindMapMermaid"])
	case ModeFast:
		// Fast results never carry a mind map or timestamps, whatever the model sent.
	}
	return result, nil
}

func summaryField(v any) string {
	if s := scalarString(v); s != "" {
		return s
	}
	return PlaceholderSummary
}

// keyTakeawaysField repairs malformed entries in place rather than dropping them.
func keyTakeawaysField(v any) []KeyTakeaway {
	items, ok := v.([]any)
	if !ok {
		return []KeyTakeaway{}
	}
	out := make([]KeyTakeaway, 0, len(items))
	for _, item := range items {
		kt := KeyTakeaway{Point: PlaceholderPoint, Detail: PlaceholderDetail}
		switch e := item.(type) {
		case map[string]any:
			if s := scalarString(e["point"]); s != "" {
				kt.Point = s
			}
			if s := scalarString(e["detail"]); s != "" {
				kt.Detail = s
			}
		default:
			if s := scalarString(e); s != "" {
				kt.Point = s
			}
		}
		out = append(out, kt)
	}
	return out
}

func actionItemsField(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch e := item.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(e)
			if err != nil {
				continue
			}
			s = string(b)
		default:
			s = scalarString(e)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func timestampsField(v any) []Timestamp {
	items, ok := v.([]any)
	if !ok {
		return []Timestamp{}
	}
	out := make([]Timestamp, 0, len(items))
	for _, item := range items {
		e, ok := item.(map[string]any)
		if !ok {
			if s := scalarString(item); s != "" {
				out = append(out, Timestamp{Time: "00:00", Description: s})
			}
			continue
		}

		seconds := numberField(e["seconds"])
		display, _ := e["time"].(string)
		display = strings.TrimSpace(display)
		if display == "" || (display == "00:00" && seconds > 0) {
			display = media.FormatClock(seconds)
		}
		out = append(out, Timestamp{
			Time:        display,
			Seconds:     seconds,
			Description: scalarString(e["description"]),
		})
	}
	return out
}

// mindMapField guarantees a diagram that starts with a root keyword.
func mindMapField(v any) string {
	s, _ := v.(string)
	s = jsonutil.StripMarkdownFences(s)
	if s == "" {
		return PlaceholderMindMap
	}
	if !hasMindMapRoot(s) {
		s = mindMapRoot + "\n" + s
	}
	return s
}

func hasMindMapRoot(s string) bool {
	return strings.HasPrefix(s, "graph") || strings.HasPrefix(s, "flowchart")
}

// numberField returns a non-negative finite number, or 0.
func numberField(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// scalarString renders strings, numbers and booleans as trimmed text. Anything
// else yields "".
func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}
