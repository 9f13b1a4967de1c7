package cli

import (
	"context"

	"github.com/fpang/video-insight/internal/auth"
	"github.com/fpang/video-insight/internal/gemini"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// InitGeminiClient creates a Gemini client and, when validate is set, checks
// the key with a minimal request. Exits fatally on failure.
func InitGeminiClient(ctx context.Context, validate bool) *genai.Client {
	apiKey, err := auth.GetAPIKey(ctx)
	if err != nil {
		HandleValidationError(err)
	}

	client, err := gemini.NewGeminiClient(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini client")
	}

	log.Info().Msg("connection successful - Gemini client initialized")

	if validate {
		if err := auth.ValidateAPIKey(ctx, client); err != nil {
			HandleValidationError(err)
		}
		log.Info().Msg("API key validation complete - ready for operations")
	}

	return client
}
