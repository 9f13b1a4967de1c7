// Package gemini adapts the Gemini API to the three primitives the analysis
// pipeline needs: upload a file, read its processing state, and generate
// content from an ordered list of parts.
package gemini

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Request is one generation call.
type Request struct {
	Model             string
	SystemInstruction string
	Parts             []*genai.Part

	// Schema asks the service to shape its output as JSON. The output still
	// has to be parsed defensively.
	Schema *genai.Schema

	// ThinkingBudget caps reasoning tokens; nil leaves the model default.
	ThinkingBudget *int32
}

// Client implements the transport primitives on top of a genai.Client.
type Client struct {
	genai *genai.Client
}

// NewGeminiClient creates a genai client for the Gemini Developer API.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// NewClient wraps an existing genai client.
func NewClient(c *genai.Client) *Client {
	return &Client{genai: c}
}

// Upload streams r to the Files API and returns the registered file. The
// returned state may already be ACTIVE for small files.
func (c *Client) Upload(ctx context.Context, r io.Reader, displayName, mimeType string) (*genai.File, error) {
	log.Debug().
		Str("display_name", displayName).
		Str("mime_type", mimeType).
		Msg("Starting Gemini Files API upload")

	uploadStart := time.Now()
	file, err := c.genai.Files.Upload(ctx, r, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	log.Debug().
		Str("name", file.Name).
		Str("uri", file.URI).
		Str("state", string(file.State)).
		Dur("upload_duration", time.Since(uploadStart)).
		Msg("File uploaded to Gemini")
	return file, nil
}

// Status returns the most recent processing state of an uploaded file.
func (c *Client) Status(ctx context.Context, name string) (genai.FileState, error) {
	file, err := c.genai.Files.Get(ctx, name, nil)
	if err != nil {
		return genai.FileStateUnspecified, fmt.Errorf("get file state: %w", err)
	}
	return file.State, nil
}

// Generate sends a single-turn request and returns the concatenated text of
// the response. An empty string is a valid return; callers decide whether
// that is an error.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = GetModelName()
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.Schema
	}
	if req.ThinkingBudget != nil {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: req.ThinkingBudget}
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: req.Parts}}

	log.Debug().
		Str("model", model).
		Int("parts", len(req.Parts)).
		Bool("structured", req.Schema != nil).
		Msg("Starting Gemini API call")

	callStart := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, config)
	duration := time.Since(callStart)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Failed to generate content")
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil {
		return "", nil
	}

	text := resp.Text()
	log.Debug().
		Int("response_length", len(text)).
		Dur("duration", duration).
		Msg("Gemini API response received")
	return text, nil
}
