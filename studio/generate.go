package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"imagestudio/orchestrator"
	"imagestudio/prompt"
	"imagestudio/providers"
)

// GenerateRequest is one text-to-image form submission.
type GenerateRequest struct {
	Token  string
	Prompt string
	Style  string
}

// GenerateResult carries the generated image and where copies of it went.
type GenerateResult struct {
	Image       []byte
	ContentType string
	Format      string
	Model       string
	Prompt      string // the prompt after the style suffix was applied
	Status      string
	LocalPath   string // set when a local copy was saved
	URL         string // set when the image was uploaded to the image host
}

// Generate tries each generation model in order and returns the first image.
// Input is validated before any network call.
func (s *Studio) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	token, ok := s.token(req.Token)
	if !ok {
		return nil, newError(ErrMissingCredential, MsgMissingToken, nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, newError(ErrInvalidInput, MsgMissingPrompt, nil)
	}

	styled := req.Prompt
	if req.Style != "" && req.Style != prompt.StyleNone {
		styled = prompt.ApplyStyle(req.Prompt, req.Style)
	}

	logger := zerolog.Ctx(ctx)
	logger.Info().Str("style", req.Style).Int("prompt_len", len(styled)).Msg("generating image")

	res := orchestrator.Run(ctx, s.generationModels, s.generationOptions(),
		func(ctx context.Context, ep providers.ModelEndpoint) providers.Outcome[*providers.GenerationOutput] {
			out, err := s.generator.Generate(ctx, providers.GenerationInput{
				Prompt: styled,
				Model:  ep.ID,
				Token:  token,
			})
			return providers.NewOutcome(out, err)
		})
	if !res.OK {
		return nil, newError(ErrProvidersExhausted, MsgGenerationFailed, res.Err())
	}

	out := res.Value
	result := &GenerateResult{
		Image:       out.ImageBytes,
		ContentType: out.ContentType,
		Format:      out.Format,
		Model:       res.Endpoint.ID,
		Prompt:      styled,
		Status:      fmt.Sprintf("Success! Image generated using %s", res.Endpoint.ID),
	}
	s.keepCopies(ctx, result)
	return result, nil
}

// GenerateGhibli sends the prompt with the fixed Ghibli suffix to the Stability
// generator.
func (s *Studio) GenerateGhibli(ctx context.Context, userPrompt string) (*GenerateResult, error) {
	if s.ghibli == nil {
		return nil, newError(ErrMissingCredential, MsgMissingStability, nil)
	}
	if strings.TrimSpace(userPrompt) == "" {
		return nil, newError(ErrInvalidInput, MsgMissingPrompt, nil)
	}
	enhanced := userPrompt + prompt.GhibliSuffix

	var eps []providers.ModelEndpoint
	for _, m := range s.ghibli.GetModels() {
		eps = append(eps, providers.ModelEndpoint{ID: m.Name, Purpose: providers.PurposeGeneration})
	}

	res := orchestrator.Run(ctx, eps, orchestrator.Options{
		Timeout:        s.cfg.Stability.Timeout.Std(),
		RateLimitDelay: s.cfg.HuggingFace.RateLimitDelay.Std(),
		Sleep:          s.sleep,
	}, func(ctx context.Context, ep providers.ModelEndpoint) providers.Outcome[*providers.GenerationOutput] {
		out, err := s.ghibli.Generate(ctx, providers.GenerationInput{Prompt: enhanced, Model: ep.ID})
		return providers.NewOutcome(out, err)
	})
	if !res.OK {
		return nil, ghibliError(res.Err())
	}

	out := res.Value
	result := &GenerateResult{
		Image:       out.ImageBytes,
		ContentType: out.ContentType,
		Format:      out.Format,
		Model:       out.Model,
		Prompt:      enhanced,
		Status:      MsgGhibliGenerated,
	}
	s.keepCopies(ctx, result)
	return result, nil
}

func ghibliError(err error) *Error {
	var httpErr *providers.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return newError(ErrRemoteFailure, fmt.Sprintf("Error: %d - %s", httpErr.StatusCode, httpErr.Body), err)
	case errors.Is(err, providers.ErrMalformedResponse):
		return newError(ErrRemoteFailure, "Error: No image generated", err)
	default:
		return newError(ErrRemoteFailure, "An error occurred: "+err.Error(), err)
	}
}
