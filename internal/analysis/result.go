package analysis

import "github.com/fpang/video-insight/internal/media"

// Result is the sanitized report for one video. Every slice is non-nil so the
// JSON form always carries [] rather than null. Fields the mode does not
// promise are present but empty.
type Result struct {
	Mode           Mode          `json:"mode"`
	Summary        string        `json:"summary"`
	KeyTakeaways   []KeyTakeaway `json:"keyTakeaways"`
	MindMapMermaid string        `json:"mindMapMermaid"`
	Timestamps     []Timestamp   `json:"timestamps"`
	ActionItems    []string      `json:"actionItems"`

	// FileURI is the Files API handle of an uploaded video, kept so follow-up
	// chat can reuse it. Empty for inline videos.
	FileURI      string `json:"fileUri,omitempty"`
	FileMIMEType string `json:"fileMimeType,omitempty"`
}

// KeyTakeaway is one key point with supporting detail.
type KeyTakeaway struct {
	Point  string `json:"point"`
	Detail string `json:"detail"`
}

// Timestamp marks a notable moment. Time is MM:SS.
type Timestamp struct {
	Time        string  `json:"time"`
	Seconds     float64 `json:"seconds"`
	Description string  `json:"description"`
}

// RemoteReference returns the retained uploaded file, if any.
func (r *Result) RemoteReference() (media.Remote, bool) {
	if r == nil || r.FileURI == "" {
		return media.Remote{}, false
	}
	return media.Remote{URI: r.FileURI, MIMEType: r.FileMIMEType}, true
}

func (r *Result) retain(ref media.Reference) {
	if remote, ok := ref.(media.Remote); ok {
		r.FileURI = remote.URI
		r.FileMIMEType = remote.MIMEType
	}
}
