package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	huggingFaceName     = "huggingface"
	defaultHFBaseURL    = "https://api-inference.huggingface.co"
	defaultHFSteps      = 30
	defaultHFGuidance   = 7.5
	maxErrorBodyInError = 512
)

// HuggingFaceProvider talks to the HuggingFace Inference API for both
// text-to-image and image captioning models.
type HuggingFaceProvider struct {
	BaseURL string
	APIKey  string // Used when a request carries no token of its own
	Client  *http.Client
	Models  []ModelEndpoint
}

var _ ImageProvider = (*HuggingFaceProvider)(nil)
var _ Captioner = (*HuggingFaceProvider)(nil)

// NewHuggingFaceProvider creates a HuggingFace client. An empty baseURL selects the public API.
func NewHuggingFaceProvider(baseURL, apiKey string, client *http.Client, models []ModelEndpoint) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = defaultHFBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HuggingFaceProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  client,
		Models:  models,
	}
}

// GetName returns the name of the provider.
func (p *HuggingFaceProvider) GetName() string {
	return huggingFaceName
}

// GetModels returns the configured models and their capabilities.
func (p *HuggingFaceProvider) GetModels() []ModelCapabilities {
	caps := make([]ModelCapabilities, 0, len(p.Models))
	for _, m := range p.Models {
		c := ModelCapabilities{Name: m.ID, Purpose: m.Purpose}
		if m.Purpose == PurposeGeneration {
			c.SupportedParams = []string{"steps", "guidance_scale"}
			c.DefaultSteps = defaultHFSteps
		}
		caps = append(caps, c)
	}
	return caps
}

type hfParameters struct {
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

// hfGenerationPayload matches the structure for text-to-image inference.
type hfGenerationPayload struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// Generate asks one text-to-image model for an image. The response body is the raw image.
func (p *HuggingFaceProvider) Generate(ctx context.Context, input GenerationInput) (*GenerationOutput, error) {
	payload := hfGenerationPayload{
		Inputs: input.Prompt,
		Parameters: hfParameters{
			NumInferenceSteps: input.Steps,
			GuidanceScale:     input.GuidanceScale,
		},
	}
	if payload.Parameters.NumInferenceSteps <= 0 {
		payload.Parameters.NumInferenceSteps = defaultHFSteps
	}
	if payload.Parameters.GuidanceScale <= 0 {
		payload.Parameters.GuidanceScale = defaultHFGuidance
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("huggingface: failed to marshal payload: %w", err)
	}

	body, err := p.post(ctx, input.Model, p.token(input.Token), "application/json", payloadBytes)
	if err != nil {
		return nil, err
	}

	_, format, err := DecodeImage(body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w: %w", ErrMalformedResponse, err)
	}
	return &GenerationOutput{
		ImageBytes:  body,
		Format:      format,
		ContentType: "image/" + format,
		Model:       input.Model,
	}, nil
}

// Caption sends JPEG bytes to one captioning model and parses whichever layout it answers with.
func (p *HuggingFaceProvider) Caption(ctx context.Context, input CaptionInput) (*CaptionOutput, error) {
	if len(input.ImageBytes) == 0 {
		return nil, fmt.Errorf("huggingface: empty image")
	}
	body, err := p.post(ctx, input.Model, p.token(input.Token), "image/jpeg", input.ImageBytes)
	if err != nil {
		return nil, err
	}
	caption, err := ParseCaption(body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}
	return &CaptionOutput{Caption: caption, Model: input.Model}, nil
}

func (p *HuggingFaceProvider) token(requestToken string) string {
	if requestToken != "" {
		return requestToken
	}
	return p.APIKey
}

func (p *HuggingFaceProvider) modelURL(model string) (string, error) {
	if _, _, err := ParseModelName(model); err != nil {
		return "", fmt.Errorf("huggingface: %w", err)
	}
	return p.BaseURL + "/models/" + model, nil
}

// post issues one request and returns the body of a 200 response. Other statuses
// come back as *HTTPError.
func (p *HuggingFaceProvider) post(ctx context.Context, model, token, contentType string, payload []byte) ([]byte, error) {
	apiURL, err := p.modelURL(model)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("provider", p.GetName()).Str("model", model).Int("payload_bytes", len(payload)).
		Msg("calling provider")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: failed to call external API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBodyInError),
			Provider:   p.GetName(),
			Model:      model,
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
