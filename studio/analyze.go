package studio

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"imagestudio/analysis"
	"imagestudio/cache"
	"imagestudio/metrics"
	"imagestudio/orchestrator"
	"imagestudio/providers"
)

// maxCaptionSide bounds uploads before they are sent to a captioning model.
const maxCaptionSide = 1920

// PromptSource says where a generated prompt came from.
type PromptSource string

const (
	SourceCaption  PromptSource = "caption"
	SourceCache    PromptSource = "cache"
	SourceFallback PromptSource = "fallback"
)

// AnalyzeResult is the prompt produced for one image.
type AnalyzeResult struct {
	Prompt  string
	Caption string // raw caption before enhancement, empty for the fallback
	Source  PromptSource
	Model   string
	Status  string
}

// FetchResult is an image downloaded from a user-supplied URL.
type FetchResult struct {
	Image  image.Image
	Status string
}

type captionResult struct {
	text  string
	model string
}

var errEmptyCaption = errors.New("empty caption")

// Analyze captions img with the first captioning model that answers and enhances
// the caption. When no model answers, the prompt is synthesized from pixel
// statistics, so a valid request always yields a prompt.
func (s *Studio) Analyze(ctx context.Context, token string, img image.Image) (*AnalyzeResult, error) {
	token, ok := s.token(token)
	if !ok {
		return nil, newError(ErrMissingCredential, MsgMissingToken, nil)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, newError(ErrInvalidInput, MsgMissingImage, nil)
	}

	logger := zerolog.Ctx(ctx)

	jpeg, err := PrepareForCaption(img)
	if err != nil {
		logger.Warn().Err(err).Msg("could not encode image for captioning")
		return s.fallback(ctx, img), nil
	}
	digest := cache.Digest(jpeg)

	if text, hit := s.cachedCaption(ctx, digest); hit {
		return &AnalyzeResult{
			Prompt:  s.synth.Enhance(text),
			Caption: text,
			Source:  SourceCache,
			Status:  "Prompt generated from cached caption",
		}, nil
	}

	// Concurrent requests for the same image and token share one round of model
	// calls. The shared call must outlive any single caller's cancellation.
	v, err, shared := s.captions.Do(digest+":"+cache.Digest([]byte(token)), func() (any, error) {
		return s.caption(context.WithoutCancel(ctx), token, jpeg, digest)
	})
	if err != nil {
		logger.Info().Err(err).Msg("captioning failed, using local analysis")
		return s.fallback(ctx, img), nil
	}
	c := v.(captionResult)
	logger.Debug().Str("model", c.model).Bool("shared", shared).Msg("caption received")

	return &AnalyzeResult{
		Prompt:  s.synth.Enhance(c.text),
		Caption: c.text,
		Source:  SourceCaption,
		Model:   c.model,
		Status:  fmt.Sprintf("Prompt generated using %s", c.model),
	}, nil
}

func (s *Studio) caption(ctx context.Context, token string, jpeg []byte, digest string) (captionResult, error) {
	res := orchestrator.Run(ctx, s.captionModels, s.captionOptions(),
		func(ctx context.Context, ep providers.ModelEndpoint) providers.Outcome[captionResult] {
			out, err := s.captioner.Caption(ctx, providers.CaptionInput{ImageBytes: jpeg, Model: ep.ID, Token: token})
			if err == nil && strings.TrimSpace(out.Text) == "" {
				err = fmt.Errorf("%s: %w", ep.ID, errEmptyCaption)
			}
			if err != nil {
				return providers.NewOutcome(captionResult{}, err)
			}
			zerolog.Ctx(ctx).Debug().Str("model", ep.ID).Str("shape", out.Shape.String()).Msg("parsed caption")
			return providers.NewOutcome(captionResult{text: out.Text, model: ep.ID}, nil)
		})
	if !res.OK {
		return captionResult{}, newError(ErrProvidersExhausted, "all captioning models failed", res.Err())
	}

	if err := s.cache.Set(ctx, digest, res.Value.text); err != nil {
		metrics.IncCache("error")
		zerolog.Ctx(ctx).Warn().Err(err).Msg("caption cache write failed")
	}
	return res.Value, nil
}

func (s *Studio) cachedCaption(ctx context.Context, digest string) (string, bool) {
	text, ok, err := s.cache.Get(ctx, digest)
	switch {
	case err != nil:
		metrics.IncCache("error")
		zerolog.Ctx(ctx).Warn().Err(err).Msg("caption cache read failed")
		return "", false
	case ok:
		metrics.IncCache("hit")
		return text, true
	default:
		metrics.IncCache("miss")
		return "", false
	}
}

func (s *Studio) fallback(ctx context.Context, img image.Image) *AnalyzeResult {
	res := analysis.Analyze(img)
	metrics.IncFallback()
	zerolog.Ctx(ctx).Info().
		Strs("colors", res.DominantColors).
		Str("brightness", string(res.Brightness)).
		Str("scene", string(res.Scene)).
		Msg("synthesized fallback prompt")
	return &AnalyzeResult{
		Prompt: s.synth.Fallback(res),
		Source: SourceFallback,
		Status: "Prompt generated from local image analysis",
	}
}

// PrepareForCaption shrinks images larger than 1920 on either side and encodes
// the result as JPEG.
func PrepareForCaption(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() > maxCaptionSide || b.Dy() > maxCaptionSide {
		img = resize.Thumbnail(maxCaptionSide, maxCaptionSide, img, resize.Lanczos3)
	}
	return providers.EncodeJPEG(img)
}

// Fetch downloads an image from a user-supplied URL.
func (s *Studio) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, newError(ErrInvalidInput, MsgInvalidURL, nil)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, newError(ErrInvalidInput, MsgInvalidURL, err)
	}

	img, err := providers.DownloadImage(ctx, s.client, rawURL, s.cfg.Settings.DownloadTimeout.Std())
	if err != nil {
		metrics.IncDownload("failure")
		zerolog.Ctx(ctx).Warn().Err(err).Str("host", u.Host).Msg("image download failed")
		return nil, newError(ErrDownloadFailure, MsgDownloadFailed, err)
	}
	metrics.IncDownload("success")
	return &FetchResult{Image: img, Status: MsgFetched}, nil
}
