// Package analysis derives a coarse description of an image from its pixels:
// dominant colour names, a brightness level and a scene type guessed from the
// aspect ratio. It is the local fallback used when no captioning model answers.
package analysis

import (
	"cmp"
	"image"
	"image/color"
	"slices"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	// ThumbnailSize bounds both sides of the working thumbnail.
	ThumbnailSize = 100
	// MaxColors is the number of distinct colour buckets kept in a histogram.
	MaxColors = 10000

	topColors     = 3
	maxColorNames = 2

	// FallbackColor describes images whose histogram is empty.
	FallbackColor = "colorful"
)

// Brightness is the coarse brightness level of an image.
type Brightness string

const (
	Bright   Brightness = "bright"
	Dark     Brightness = "dark"
	Balanced Brightness = "balanced"
)

// Scene is the scene type guessed from the aspect ratio.
type Scene string

const (
	Landscape Scene = "landscape"
	Portrait  Scene = "portrait"
	Generic   Scene = "scene"
)

// ColorSample is one histogram bucket.
type ColorSample struct {
	Count int
	RGB   [3]uint8
}

// Result is the outcome of analysing one image.
type Result struct {
	DominantColors []string
	Brightness     Brightness
	Scene          Scene
	// Size of the thumbnail the statistics were computed on.
	Width, Height int
}

// Analyze reduces img to a thumbnail and computes its colour, brightness and scene
// statistics. It never fails: degenerate input yields "colorful", balanced and scene.
func Analyze(img image.Image) Result {
	thumb := Thumbnail(img)
	b := thumb.Bounds()

	res := Result{
		DominantColors: DominantColorNames(Histogram(thumb, MaxColors)),
		Brightness:     Balanced,
		Scene:          ClassifyScene(b.Dx(), b.Dy()),
		Width:          b.Dx(),
		Height:         b.Dy(),
	}
	if mean, ok := MeanLuminance(thumb); ok {
		res.Brightness = ClassifyBrightness(mean)
	}
	return res
}

// Thumbnail returns a copy of img no larger than ThumbnailSize on either side.
// The aspect ratio is preserved and small images are not enlarged.
func Thumbnail(img image.Image) image.Image {
	if img == nil || img.Bounds().Empty() {
		return image.NewNRGBA(image.Rectangle{})
	}
	work := imaging.Clone(img)
	return resize.Thumbnail(ThumbnailSize, ThumbnailSize, work, resize.NearestNeighbor)
}

// Histogram counts the RGB triples of img, most frequent first. Ties keep the
// row-major order in which colours were first seen. Once limit distinct colours
// are known, new colours are ignored.
func Histogram(img image.Image, limit int) []ColorSample {
	b := img.Bounds()
	index := make(map[[3]uint8]int)
	var samples []ColorSample

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			key := rgb(img.At(x, y))
			if i, ok := index[key]; ok {
				samples[i].Count++
				continue
			}
			if len(samples) >= limit {
				continue
			}
			index[key] = len(samples)
			samples = append(samples, ColorSample{Count: 1, RGB: key})
		}
	}

	slices.SortStableFunc(samples, func(a, b ColorSample) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return samples
}

// ColorName maps an RGB triple onto one of white, black, red, green, blue, yellow
// or colorful. The first matching rule wins.
func ColorName(c [3]uint8) string {
	r, g, b := c[0], c[1], c[2]
	switch {
	case r > 200 && g > 200 && b > 200:
		return "white"
	case r < 60 && g < 60 && b < 60:
		return "black"
	case r > 200 && g < 100 && b < 100:
		return "red"
	case r < 100 && g > 200 && b < 100:
		return "green"
	case r < 100 && g < 100 && b > 200:
		return "blue"
	case r > 200 && g > 200 && b < 100:
		return "yellow"
	default:
		return "colorful"
	}
}

// DominantColorNames names the top three buckets of a ranked histogram and keeps
// at most two distinct names.
func DominantColorNames(ranked []ColorSample) []string {
	if len(ranked) == 0 {
		return []string{FallbackColor}
	}
	var names []string
	for _, s := range ranked[:min(topColors, len(ranked))] {
		name := ColorName(s.RGB)
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names[:min(maxColorNames, len(names))]
}

// Luminance is the ITU-R 601-2 luma of an RGB triple, rounded to an integer.
func Luminance(c [3]uint8) int {
	return (19595*int(c[0]) + 38470*int(c[1]) + 7471*int(c[2]) + 1<<15) >> 16
}

// MeanLuminance averages the luma of every pixel. ok is false for empty images.
func MeanLuminance(img image.Image) (mean float64, ok bool) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n <= 0 {
		return 0, false
	}
	sum := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += Luminance(rgb(img.At(x, y)))
		}
	}
	return float64(sum) / float64(n), true
}

// ClassifyBrightness buckets a mean luminance in [0, 255].
func ClassifyBrightness(mean float64) Brightness {
	switch {
	case mean > 200:
		return Bright
	case mean < 50:
		return Dark
	default:
		return Balanced
	}
}

func rgb(c color.Color) [3]uint8 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return [3]uint8{n.R, n.G, n.B}
}
