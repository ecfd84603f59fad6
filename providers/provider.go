package providers

import "context"

// Purpose says what a model endpoint is used for.
type Purpose string

const (
	PurposeGeneration Purpose = "generation"
	PurposeCaptioning Purpose = "captioning"
)

// ModelEndpoint identifies one remote model. Lists of endpoints are tried in order.
type ModelEndpoint struct {
	ID      string  `json:"id"`
	Purpose Purpose `json:"purpose"`
}

// Endpoints builds an ordered endpoint list for one purpose.
func Endpoints(purpose Purpose, ids ...string) []ModelEndpoint {
	eps := make([]ModelEndpoint, 0, len(ids))
	for _, id := range ids {
		eps = append(eps, ModelEndpoint{ID: id, Purpose: purpose})
	}
	return eps
}

// ModelCapabilities defines the specific capabilities of an AI model.
type ModelCapabilities struct {
	Name            string   `json:"name"`
	Purpose         Purpose  `json:"purpose"`
	SupportedParams []string `json:"supported_params"`
	MaxWidth        int      `json:"max_width,omitempty"`
	MaxHeight       int      `json:"max_height,omitempty"`
	DefaultSteps    int      `json:"default_steps,omitempty"`
}

// GenerationInput defines the standardized input for all text-to-image providers.
type GenerationInput struct {
	Prompt        string
	Model         string // The specific model name, e.g. "runwayml/stable-diffusion-v1-5"
	Token         string // Per-request credential; providers fall back to their own key
	Width         int
	Height        int
	Steps         int
	GuidanceScale float64
}

// GenerationOutput defines the standardized output from all text-to-image providers.
type GenerationOutput struct {
	ImageBytes  []byte // The generated image bytes
	Format      string // The decoded format, e.g. "png", "jpeg"
	ContentType string
	Model       string
}

// CaptionInput is one image sent to a captioning model.
type CaptionInput struct {
	ImageBytes []byte // JPEG encoded
	Model      string
	Token      string
}

// CaptionOutput is the caption extracted from a captioning model's response.
type CaptionOutput struct {
	Caption
	Model string
}

// ImageProvider is the interface that all text-to-image providers must implement.
type ImageProvider interface {
	// Generate an image based on the provided input.
	Generate(ctx context.Context, input GenerationInput) (*GenerationOutput, error)
	// GetName returns the name of the provider (e.g., "huggingface").
	GetName() string
	// GetModels returns a list of models supported by the provider and their capabilities.
	GetModels() []ModelCapabilities
}

// Captioner describes images with a remote captioning model.
type Captioner interface {
	Caption(ctx context.Context, input CaptionInput) (*CaptionOutput, error)
	GetName() string
}
