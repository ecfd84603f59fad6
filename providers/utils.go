package providers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Keep for decoding gifs
	_ "image/jpeg" // Keep for decoding jpegs
	_ "image/png"  // Keep for decoding pngs
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// MaxDownloadBytes caps the size of a downloaded image.
const MaxDownloadBytes = 20 << 20

// DownloadFile downloads a file from a URL and returns its content and detected content type.
// The whole request, including reading the body, is bounded by timeout.
func DownloadFile(ctx context.Context, client *http.Client, url string, timeout time.Duration) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("bad status: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxDownloadBytes {
		return nil, "", fmt.Errorf("download exceeds %d bytes", MaxDownloadBytes)
	}
	return data, mimetype.Detect(data).String(), nil
}

// DownloadImage fetches url and decodes it as an image.
func DownloadImage(ctx context.Context, client *http.Client, url string, timeout time.Duration) (image.Image, error) {
	data, contentType, err := DownloadFile(ctx, client, url, timeout)
	if err != nil {
		return nil, err
	}
	img, format, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("url", url).Str("content_type", contentType).Str("format", format).
		Int("bytes", len(data)).Msg("downloaded image")
	return img, nil
}

// DecodeImage sniffs and decodes png, jpeg, gif and webp data.
func DecodeImage(data []byte) (image.Image, string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", fmt.Errorf("not an image: detected %s", mt.String())
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// EncodeJPEG re-encodes img as a JPEG, the format captioning models receive.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("failed to encode image to jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseModelName splits a full model name string into its owner and model parts.
// The expected format is "owner/model_name".
func ParseModelName(fullModelName string) (string, string, error) {
	parts := strings.SplitN(fullModelName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format. Expected 'owner/model_name', got '%s'", fullModelName)
	}
	return parts[0], parts[1], nil
}
