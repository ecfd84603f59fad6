package prompt

// StyleNone leaves prompts unchanged.
const StyleNone = "none"

var styleSuffixes = map[string]string{
	"anime":        ", anime style, anime art, japanese animation style, vibrant colors, clean lines",
	"ghibli":       ", Studio Ghibli style, Miyazaki inspired, hand-drawn animation, painterly, whimsical, detailed background, fantasy elements",
	"photographic": ", professional photography, photorealistic, detailed, sharp focus, high resolution photograph",
	"digital-art":  ", digital art, digital painting, detailed, vibrant colors, smooth gradients, 8k resolution",
	"comic-book":   ", comic book style, bold outlines, flat colors, action-oriented, dynamic composition",
	"fantasy-art":  ", fantasy art, magical, ethereal, mystical atmosphere, detailed, vibrant colors",
	"line-art":     ", line art, black and white, minimal, clean lines, no shading",
	"cinematic":    ", cinematic, dramatic lighting, movie still, film grain, wide angle, dramatic composition",
}

// Styles lists the presets in the order the form shows them.
var Styles = []string{
	StyleNone, "ghibli", "anime", "photographic", "digital-art",
	"comic-book", "fantasy-art", "line-art", "cinematic",
}

// GhibliSuffix is appended to every prompt sent to the Stability generator.
const GhibliSuffix = ", Studio Ghibli style, Hayao Miyazaki, hand-drawn animation, soft colors, dreamy atmosphere, whimsical"

// ApplyStyle appends the preset's suffix. Unknown styles and "none" add nothing.
func ApplyStyle(p, style string) string {
	return p + styleSuffixes[style]
}
