package analysis

// ClassifyScene guesses the scene type from the width/height ratio.
func ClassifyScene(width, height int) Scene {
	if height <= 0 || width <= 0 {
		return Generic
	}
	aspect := float64(width) / float64(height)
	switch {
	case aspect > 1.2:
		return Landscape
	case aspect < 0.8:
		return Portrait
	default:
		return Generic
	}
}
