// Package studio implements the two form actions of the application, text to
// image and image to prompt, on top of the remote providers. Every failure is
// turned into a status line; captioning falls back to local pixel analysis.
package studio

import (
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"imagestudio/cache"
	"imagestudio/config"
	"imagestudio/imagehost"
	"imagestudio/orchestrator"
	"imagestudio/prompt"
	"imagestudio/providers"
)

// Deps are the collaborators of a Studio. Nil fields are built from the config.
type Deps struct {
	Generator   providers.ImageProvider
	Captioner   providers.Captioner
	Ghibli      providers.ImageProvider
	Synthesizer *prompt.Synthesizer
	Cache       cache.CaptionCache
	Uploader    imagehost.Uploader
	HTTPClient  *http.Client
	Sleep       orchestrator.Sleeper
}

// Studio serves generation and analysis requests. It is safe for concurrent use;
// apart from the caption cache it holds no per-request state.
type Studio struct {
	cfg *config.Config

	generator providers.ImageProvider
	captioner providers.Captioner
	ghibli    providers.ImageProvider
	synth     *prompt.Synthesizer
	cache     cache.CaptionCache
	uploader  imagehost.Uploader
	client    *http.Client
	sleep     orchestrator.Sleeper

	generationModels []providers.ModelEndpoint
	captionModels    []providers.ModelEndpoint

	captions singleflight.Group
}

// New wires a Studio from cfg and deps.
func New(cfg *config.Config, deps Deps) *Studio {
	s := &Studio{
		cfg:              cfg,
		generator:        deps.Generator,
		captioner:        deps.Captioner,
		ghibli:           deps.Ghibli,
		synth:            deps.Synthesizer,
		cache:            deps.Cache,
		uploader:         deps.Uploader,
		client:           deps.HTTPClient,
		sleep:            deps.Sleep,
		generationModels: providers.Endpoints(providers.PurposeGeneration, cfg.HuggingFace.GenerationModels...),
		captionModels:    providers.Endpoints(providers.PurposeCaptioning, cfg.HuggingFace.CaptionModels...),
	}

	if s.generator == nil || s.captioner == nil {
		hf := providers.NewHuggingFaceProvider(cfg.HuggingFace.BaseURL, cfg.APIKeys.HuggingFace, nil,
			append(append([]providers.ModelEndpoint{}, s.generationModels...), s.captionModels...))
		if s.generator == nil {
			s.generator = hf
		}
		if s.captioner == nil {
			s.captioner = hf
		}
	}
	if s.ghibli == nil {
		if sp := providers.NewStabilityProvider(cfg.Stability.URL, cfg.APIKeys.Stability, nil); sp != nil {
			s.ghibli = sp
		}
	}
	if s.synth == nil {
		s.synth = prompt.New(nil)
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.uploader == nil {
		if c := imagehost.NewNodeImageClient("", cfg.APIKeys.NodeImage, nil); c != nil {
			s.uploader = c
		}
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	return s
}

// Models lists the configured endpoints, generation first.
func (s *Studio) Models() []providers.ModelEndpoint {
	return append(append([]providers.ModelEndpoint{}, s.generationModels...), s.captionModels...)
}

// CheckToken fails with ErrMissingCredential when neither the request nor the
// configuration supplies a HuggingFace token.
func (s *Studio) CheckToken(requestToken string) error {
	if _, ok := s.token(requestToken); !ok {
		return newError(ErrMissingCredential, MsgMissingToken, nil)
	}
	return nil
}

// token picks the request token, falling back to the configured one.
func (s *Studio) token(requestToken string) (string, bool) {
	if t := strings.TrimSpace(requestToken); t != "" {
		return t, true
	}
	if t := strings.TrimSpace(s.cfg.APIKeys.HuggingFace); t != "" {
		return t, true
	}
	return "", false
}

func (s *Studio) generationOptions() orchestrator.Options {
	return orchestrator.Options{
		Timeout:        s.cfg.HuggingFace.GenerationTimeout.Std(),
		RateLimitDelay: s.cfg.HuggingFace.RateLimitDelay.Std(),
		Sleep:          s.sleep,
	}
}

func (s *Studio) captionOptions() orchestrator.Options {
	return orchestrator.Options{
		Timeout:        s.cfg.HuggingFace.CaptionTimeout.Std(),
		RateLimitDelay: s.cfg.HuggingFace.RateLimitDelay.Std(),
		Sleep:          s.sleep,
	}
}
