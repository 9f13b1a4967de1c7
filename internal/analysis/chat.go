package analysis

import (
	"context"
	"errors"
	"strings"

	"github.com/fpang/video-insight/internal/assets"
	"github.com/fpang/video-insight/internal/cancel"
	"github.com/fpang/video-insight/internal/gemini"
	"github.com/fpang/video-insight/internal/media"
	"github.com/fpang/video-insight/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Role identifies the speaker of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Speaker is the prefix used when the transcript is flattened into text.
func (r Role) Speaker() string {
	if r == RoleAssistant {
		return "AI"
	}
	return "用户"
}

// Turn is one message of a follow-up conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatRequest is a follow-up question about an analysed video. The video is
// taken from Remote when set, otherwise from Source (inlined or re-uploaded).
type ChatRequest struct {
	History []Turn
	Message string
	Remote  *media.Remote
	Source  media.Source
}

// chatErrorPrefix starts every degraded reply.
const chatErrorPrefix = "抱歉，回答时出现错误："

// Chat answers a follow-up question in Chinese.
//
// Chat never fails: any error becomes a visible reply text, and ok reports
// whether the reply is a real answer.
func (a *Analyzer) Chat(ctx context.Context, req ChatRequest) (reply string, ok bool) {
	text, err := a.chat(ctx, req)
	metrics.ObserveChat(err == nil)
	if err != nil {
		log.Warn().Err(err).Int("history_turns", len(req.History)).Msg("Chat follow-up failed")
		msg := UserMessage(err)
		if KindOf(err) == KindUnknown {
			msg = err.Error()
		}
		return chatErrorPrefix + msg, false
	}
	return text, true
}

func (a *Analyzer) chat(ctx context.Context, req ChatRequest) (string, error) {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return "", errors.New("问题不能为空")
	}

	var ref media.Reference
	switch {
	case req.Remote != nil && req.Remote.URI != "":
		ref = *req.Remote
	case req.Source != nil:
		var stats runStats
		resolved, err := a.resolveMedia(ctx, req.Source, newProgressReporter(nil), &stats)
		if err != nil {
			return "", err
		}
		ref = resolved
	default:
		return "", errors.New("没有可用的视频")
	}

	text, err := cancel.Do(ctx, func(ctx context.Context) (string, error) {
		return a.transport.Generate(ctx, gemini.Request{
			Model: a.opts.Model,
			Parts: ChatParts(ref, req.History, question),
		})
	})
	if err != nil {
		if errors.Is(err, cancel.ErrCancelled) {
			return "", errCancelled()
		}
		return "", newError(KindGeneration, err, "generate chat reply")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(KindGeneration, nil, "model returned an empty reply")
	}
	return text, nil
}

// ChatParts lays out a chat request: the video, one role-prefixed text part
// per prior turn in order, then the new question.
func ChatParts(ref media.Reference, history []Turn, question string) []*genai.Part {
	parts := make([]*genai.Part, 0, len(history)+2)
	parts = append(parts, ref.Part())
	for _, turn := range history {
		parts = append(parts, &genai.Part{Text: turn.Role.Speaker() + "：" + turn.Text})
	}
	parts = append(parts, &genai.Part{Text: assets.RenderChatQuestion(question)})
	return parts
}
