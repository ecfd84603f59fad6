package studio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagestudio/providers"
)

// keepCopies saves and uploads a generated image as configured. Failures are
// logged and never fail the request.
func (s *Studio) keepCopies(ctx context.Context, res *GenerateResult) {
	logger := zerolog.Ctx(ctx)
	name := uuid.NewString()

	if s.cfg.Settings.SaveLocalCopy {
		path, err := SaveWebP(s.cfg.Settings.ImagesDir, name, res.Image)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to save local copy")
		} else {
			res.LocalPath = path
			logger.Info().Str("path", path).Msg("saved local copy")
		}
	}

	if s.cfg.Settings.UploadToImageHost && s.uploader != nil {
		ext := res.Format
		if ext == "" {
			ext = "png"
		}
		up, err := s.uploader.Upload(ctx, res.Image, name+"."+ext)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to upload to image host")
			return
		}
		res.URL = up.Links.Direct
	}
}

// SaveWebP decodes data and writes it to dir/name.webp.
func SaveWebP(dir, name string, data []byte) (string, error) {
	img, _, err := providers.DecodeImage(data)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create images directory: %w", err)
	}

	path := filepath.Join(dir, name+".webp")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := webp.Encode(f, img, &webp.Options{Quality: 90}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode webp: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
