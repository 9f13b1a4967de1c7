// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// --- Static prompts (no dynamic data) ---

// AnalysisSystemPrompt frames the model as a video analyst answering in Chinese.
//
//go:embed prompts/system.txt
var AnalysisSystemPrompt string

// FastAnalysisPrompt requests summary, key takeaways and action items.
//
//go:embed prompts/analysis-fast.txt
var FastAnalysisPrompt string

// --- Dynamic prompt templates ---

//go:embed prompts/analysis-deep.txt
var deepAnalysisTemplate string

//go:embed prompts/chat.txt
var chatQuestionTemplate string

// Pre-parsed templates. template.Must panics on malformed templates,
// catching errors at program startup rather than at call time.
var (
	deepPromptTmpl = template.Must(template.New("deep").Parse(deepAnalysisTemplate))
	chatPromptTmpl = template.Must(template.New("chat").Parse(chatQuestionTemplate))
)

// DeepPromptData holds the dynamic data injected into the deep analysis prompt.
type DeepPromptData struct {
	// DurationHint is the video length as MM:SS, empty when unknown.
	DurationHint string
}

// RenderDeepAnalysisPrompt renders the deep analysis prompt.
func RenderDeepAnalysisPrompt(data DeepPromptData) string {
	return renderTemplate(deepPromptTmpl, data)
}

// RenderChatQuestion wraps a follow-up question with the answer instructions.
func RenderChatQuestion(question string) string {
	return renderTemplate(chatPromptTmpl, struct{ Question string }{question})
}

// renderTemplate executes a pre-parsed template. Execution errors are not
// expected with these templates; whatever was rendered is returned.
func renderTemplate(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}
