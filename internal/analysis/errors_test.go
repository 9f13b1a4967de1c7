package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fpang/video-insight/internal/cancel"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"typed", newError(KindTimeout, nil, "slow"), KindTimeout},
		{"wrapped", fmt.Errorf("job: %w", newError(KindParse, nil, "bad")), KindParse},
		{"cancel package", cancel.ErrCancelled, KindCancelled},
		{"context", context.Canceled, KindCancelled},
		{"pipeline cancel", errCancelled(), KindCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrCancelledWrapsSentinel(t *testing.T) {
	if !errors.Is(errCancelled(), cancel.ErrCancelled) {
		t.Error("pipeline cancellation should match cancel.ErrCancelled")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err      error
		contains string
	}{
		{errCancelled(), "取消"},
		{newError(KindUpload, errors.New("connection reset"), "upload video"), "connection reset"},
		{newError(KindUpload, nil, "视频文件过大"), "视频文件过大"},
		{newError(KindTimeout, nil, "x"), "超时"},
		{newError(KindGeneration, nil, "x"), "重试"},
		{newError(KindParse, errors.New("invalid character 'x'"), "x"), "格式错误"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); !strings.Contains(got, tt.contains) {
			t.Errorf("UserMessage(%v) = %q, want it to contain %q", tt.err, got, tt.contains)
		}
	}
	if got := UserMessage(nil); got != "" {
		t.Errorf("UserMessage(nil) = %q", got)
	}
}

func TestErrorKindString(t *testing.T) {
	for kind, want := range map[ErrorKind]string{
		KindUpload:     "upload",
		KindTimeout:    "timeout",
		KindCancelled:  "cancelled",
		KindGeneration: "generation",
		KindParse:      "parse",
		KindUnknown:    "unknown",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
