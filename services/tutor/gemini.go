// Package tutorsvc implements tutor.Provider on top of the Google Gemini API.
package tutorsvc

import (
	"context"
	"errors"
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/tutor"
)

const (
	defaultModel     = "gemini-1.5-flash"
	maxOutputTokens  = 1024
	replyTemperature = 0.7
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

var _ tutor.Provider = (*GeminiProvider)(nil)

// NewGeminiProvider returns a nil provider (and no error) when no API key is configured.
func NewGeminiProvider(ctx context.Context, conf *core.Config) (*GeminiProvider, error) {
	if conf.Tutor.GeminiAPIKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.Tutor.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "creating gemini client")
	}
	model := conf.Tutor.Model
	if model == "" {
		model = defaultModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	temp := float32(replyTemperature)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: maxOutputTokens,
		Temperature:     &temp,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", mapError(err)
	}
	return result.Text(), nil
}

// mapError reports quota and server failures as tutor.ErrUnavailable.
func mapError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return pkgerrors.Wrap(tutor.ErrUnavailable, apiErr.Message)
		}
	}
	return pkgerrors.Wrap(err, "gemini generate content")
}
