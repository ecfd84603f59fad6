// Package prompt turns analysis results and raw captions into generation prompts.
package prompt

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"imagestudio/analysis"
)

var adjectives = []string{
	"detailed", "beautiful", "stunning", "professional", "high-quality",
	"artistic", "creative", "impressive", "elegant", "dynamic",
}

var enhancements = []string{
	"highly detailed",
	"professional quality",
	"sharp focus",
	"intricate details",
	"beautiful composition",
	"stunning",
	"high resolution",
	"masterpiece",
}

const fallbackTemplate = "A %s %s %s with %s elements, highly detailed, professional photography, sharp focus, high resolution"

// Synthesizer builds prompts with a pseudo-random source. It is safe for concurrent use.
type Synthesizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Synthesizer drawing from rnd. A nil rnd is seeded from the clock.
func New(rnd *rand.Rand) *Synthesizer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Synthesizer{rnd: rnd}
}

// NewSeeded returns a Synthesizer whose output is reproducible for a given seed.
func NewSeeded(seed int64) *Synthesizer {
	return New(rand.New(rand.NewSource(seed)))
}

// Fallback composes a prompt from pixel statistics. The result is never empty.
func (s *Synthesizer) Fallback(res analysis.Result) string {
	s.mu.Lock()
	adjective := adjectives[s.rnd.Intn(len(adjectives))]
	s.mu.Unlock()

	brightness := res.Brightness
	if brightness == "" {
		brightness = analysis.Balanced
	}
	scene := res.Scene
	if scene == "" {
		scene = analysis.Generic
	}
	colors := res.DominantColors
	if len(colors) == 0 {
		colors = []string{analysis.FallbackColor}
	}

	return fmt.Sprintf(fallbackTemplate, adjective, brightness, scene, strings.Join(colors, " and "))
}

// Enhance appends two or three distinct descriptive phrases to a caption.
func (s *Synthesizer) Enhance(caption string) string {
	s.mu.Lock()
	n := 2 + s.rnd.Intn(2)
	order := s.rnd.Perm(len(enhancements))
	s.mu.Unlock()

	picked := make([]string, n)
	for i := range picked {
		picked[i] = enhancements[order[i]]
	}
	return caption + ", " + strings.Join(picked, ", ")
}
