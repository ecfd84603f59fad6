package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	stabilityName   = "stability"
	stabilityAPIURL = "https://api.stability.ai/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image"
	stabilityModel  = "stable-diffusion-xl-1024-v1-0"
)

// StabilityProvider implements the ImageProvider for the Stability AI SDXL endpoint.
type StabilityProvider struct {
	URL    string
	APIKey string
	Client *http.Client
}

var _ ImageProvider = (*StabilityProvider)(nil)

var stabilityModels = []ModelCapabilities{
	{Name: stabilityModel, Purpose: PurposeGeneration, SupportedParams: []string{"steps", "width", "height"}, MaxWidth: 1024, MaxHeight: 1024, DefaultSteps: 30},
}

// NewStabilityProvider creates a new Stability client. It returns nil if no API key is set.
func NewStabilityProvider(url, apiKey string, client *http.Client) *StabilityProvider {
	if apiKey == "" {
		return nil
	}
	if url == "" {
		url = stabilityAPIURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &StabilityProvider{URL: url, APIKey: apiKey, Client: client}
}

// GetName returns the name of the provider.
func (p *StabilityProvider) GetName() string {
	return stabilityName
}

// GetModels returns the list of models and their capabilities for Stability.
func (p *StabilityProvider) GetModels() []ModelCapabilities {
	return stabilityModels
}

type stabilityTextPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// stabilityAPIPayload matches the structure for the Stability text-to-image API.
type stabilityAPIPayload struct {
	TextPrompts []stabilityTextPrompt `json:"text_prompts"`
	CfgScale    float64               `json:"cfg_scale"`
	Height      int                   `json:"height"`
	Width       int                   `json:"width"`
	Samples     int                   `json:"samples"`
	Steps       int                   `json:"steps"`
	StylePreset string                `json:"style_preset"`
}

// stabilityResponse matches the JSON response with base64 artifacts.
type stabilityResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
	Message string `json:"message"`
}

// Generate sends a request to the Stability API.
func (p *StabilityProvider) Generate(ctx context.Context, input GenerationInput) (*GenerationOutput, error) {
	payload := stabilityAPIPayload{
		TextPrompts: []stabilityTextPrompt{{Text: input.Prompt, Weight: 1.0}},
		CfgScale:    7,
		Height:      1024,
		Width:       1024,
		Samples:     1,
		Steps:       30,
		StylePreset: "anime",
	}
	if input.Steps > 0 {
		payload.Steps = input.Steps
	}
	if input.GuidanceScale > 0 {
		payload.CfgScale = input.GuidanceScale
	}
	if input.Width > 0 && input.Width <= 1024 {
		payload.Width = input.Width
	}
	if input.Height > 0 && input.Height <= 1024 {
		payload.Height = input.Height
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stability: failed to marshal payload: %w", err)
	}

	log.Debug().Str("provider", p.GetName()).Str("model", stabilityModel).Msg("calling provider")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("stability: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	apiKey := p.APIKey
	if input.Token != "" {
		apiKey = input.Token
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stability: failed to call external API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: failed to read response body: %w", err)
	}

	var apiResp stabilityResponse
	decodeErr := json.Unmarshal(body, &apiResp)

	if resp.StatusCode != http.StatusOK {
		msg := "Unknown error"
		if decodeErr == nil && apiResp.Message != "" {
			msg = apiResp.Message
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: msg, Provider: p.GetName(), Model: stabilityModel}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("stability: %w: %w", ErrMalformedResponse, decodeErr)
	}
	if len(apiResp.Artifacts) == 0 {
		return nil, fmt.Errorf("stability: %w: no image generated", ErrMalformedResponse)
	}

	imageData, err := base64.StdEncoding.DecodeString(apiResp.Artifacts[0].Base64)
	if err != nil {
		return nil, fmt.Errorf("stability: failed to decode base64 image data: %w", err)
	}
	_, format, err := DecodeImage(imageData)
	if err != nil {
		return nil, fmt.Errorf("stability: %w: %w", ErrMalformedResponse, err)
	}

	return &GenerationOutput{
		ImageBytes:  imageData,
		Format:      format,
		ContentType: "image/" + format,
		Model:       stabilityModel,
	}, nil
}
