package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/fpang/video-insight/internal/cancel"
)

// ErrorKind categorizes the terminal outcomes of a failed job.
type ErrorKind int

const (
	// KindUnknown is any error that did not come from the pipeline.
	KindUnknown ErrorKind = iota
	// KindUpload indicates the media could not be read, uploaded or processed remotely.
	KindUpload
	// KindTimeout indicates remote processing did not finish within the poll budget.
	KindTimeout
	// KindCancelled indicates the job was cancelled by its owner.
	KindCancelled
	// KindGeneration indicates the model returned no usable text.
	KindGeneration
	// KindParse indicates the response could not be decoded as a JSON object.
	KindParse
)

// String returns the lowercase name used in logs, metrics and the web API.
func (k ErrorKind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindGeneration:
		return "generation"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by Run. Callers switch on Kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// errCancelled is returned for every cancellation so errors.Is(err, cancel.ErrCancelled) holds.
func errCancelled() *Error {
	return &Error{Kind: KindCancelled, Message: "analysis cancelled", Err: cancel.ErrCancelled}
}

// KindOf classifies err. Bare cancellation errors from the cancel or context
// packages count as KindCancelled.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, cancel.ErrCancelled) || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindUnknown
}

// IsCancelled reports whether err is a cancellation. Cancellation is an
// informational outcome, not a failure.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// UserMessage renders err as a short Chinese message for display. Parser
// diagnostics are never included; they are only logged.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	hasDetail := errors.As(err, &ae) && ae.Err != nil

	switch KindOf(err) {
	case KindCancelled:
		return "分析已取消"
	case KindUpload:
		if hasDetail {
			return "视频上传失败：" + ae.Err.Error()
		}
		if ae != nil {
			return "视频上传失败：" + ae.Message
		}
		return "视频上传失败"
	case KindTimeout:
		return "视频处理超时，请稍后重试或换一个较短的视频"
	case KindGeneration:
		return "AI 没有返回有效内容，请重试"
	case KindParse:
		return "分析结果格式错误，请重试"
	default:
		return "分析失败：" + err.Error()
	}
}
