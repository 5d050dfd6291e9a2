package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gen2brain/webp"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

const (
	// PostMaxDimension bounds post images sent to the classifier
	PostMaxDimension = 1024
	// ReferenceMaxDimension bounds reference images sent to the classifier
	ReferenceMaxDimension = 512

	jpegQuality      = 85
	maxImageBytes    = 25 * 1024 * 1024
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Preparer turns remote or local images into base64 JPEG payloads for a
// multimodal model.
type Preparer struct {
	client *http.Client
}

// NewPreparer creates a preparer whose remote fetches give up after timeout
func NewPreparer(timeout time.Duration) *Preparer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Preparer{
		client: &http.Client{Timeout: timeout},
	}
}

// FromURL fetches and encodes a post image. Failures are logged and
// reported as false.
func (p *Preparer) FromURL(ctx context.Context, url string) (string, bool) {
	b64, err := p.fetchAndEncode(ctx, url, PostMaxDimension)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("failed to prepare post image")
		return "", false
	}
	return b64, true
}

// FromFile reads and encodes a reference image. Failures are logged and
// reported as false.
func (p *Preparer) FromFile(path string) (string, bool) {
	b64, err := p.readAndEncode(path, ReferenceMaxDimension)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to prepare reference image")
		return "", false
	}
	return b64, true
}

func (p *Preparer) fetchAndEncode(ctx context.Context, url string, maxDim int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	res, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected HTTP status %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read image body: %w", err)
	}

	return EncodeBytes(data, maxDim)
}

func (p *Preparer) readAndEncode(path string, maxDim int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image file: %w", err)
	}
	return EncodeBytes(data, maxDim)
}

// EncodeBytes decodes JPEG, PNG, GIF or WebP data and re-encodes it as a
// base64 JPEG no larger than maxDim on either side.
func EncodeBytes(data []byte, maxDim int) (string, error) {
	img, err := decode(data)
	if err != nil {
		return "", err
	}
	return Encode(img, maxDim)
}

// Encode flattens img onto white, shrinks it to fit maxDim while keeping
// its aspect ratio, and returns it as base64 JPEG. Images are never
// enlarged.
func Encode(img image.Image, maxDim int) (string, error) {
	src := img.Bounds()
	if src.Empty() {
		return "", fmt.Errorf("image has no pixels")
	}

	width, height := FitWithin(src.Dx(), src.Dy(), maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if width == src.Dx() && height == src.Dy() {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// FitWithin scales width and height down so neither exceeds maxDim.
func FitWithin(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}

	scale := float64(maxDim) / float64(width)
	if hs := float64(maxDim) / float64(height); hs < scale {
		scale = hs
	}

	w := max(1, int(float64(width)*scale+0.5))
	h := max(1, int(float64(height)*scale+0.5))
	return min(w, maxDim), min(h, maxDim)
}

func decode(data []byte) (image.Image, error) {
	if isWebP(data) {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
