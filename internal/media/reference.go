package media

import "google.golang.org/genai"

// Reference is the media handed to a generation call: either the raw bytes
// inlined into the request, or a handle to a file already registered with the
// Gemini Files API. Exactly one variant exists per job; it is resolved once
// during upload and only inspected again to choose the request part shape.
type Reference interface {
	// Part returns the request part carrying this media.
	Part() *genai.Part
	// MIME returns the media type.
	MIME() string

	isReference()
}

// Inline carries small files directly inside the generation request.
type Inline struct {
	Data     []byte
	MIMEType string
}

// Remote points at a file uploaded to the Files API.
type Remote struct {
	Name     string // files/abc123, used for status polling
	URI      string // used in FileData parts
	MIMEType string
}

var (
	_ Reference = Inline{}
	_ Reference = Remote{}
)

// Part implements Reference.
func (m Inline) Part() *genai.Part {
	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: m.MIMEType,
			Data:     m.Data,
		},
	}
}

// MIME implements Reference.
func (m Inline) MIME() string { return m.MIMEType }

func (Inline) isReference() {}

// Part implements Reference.
func (m Remote) Part() *genai.Part {
	return &genai.Part{
		FileData: &genai.FileData{
			MIMEType: m.MIMEType,
			FileURI:  m.URI,
		},
	}
}

// MIME implements Reference.
func (m Remote) MIME() string { return m.MIMEType }

func (Remote) isReference() {}
