package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeResult(t *testing.T, b64 string) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	return img
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max     int
		wantW, wantH int
	}{
		{2048, 1024, 1024, 1024, 512},
		{1024, 2048, 512, 256, 512},
		{800, 600, 1024, 800, 600},
		{1024, 1024, 1024, 1024, 1024},
		{3000, 10, 512, 512, 2},
	}

	for _, tt := range tests {
		w, h := FitWithin(tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}

func TestEncode_TransparentBecomesWhite(t *testing.T) {
	data := pngBytes(t, 8, 8, color.NRGBA{R: 255, G: 0, B: 0, A: 0})

	b64, err := EncodeBytes(data, PostMaxDimension)
	assert.Equal(t, nil, err)

	img := decodeResult(t, b64)
	r, g, b, _ := img.At(4, 4).RGBA()
	assert.Equal(t, true, r>>8 > 240 && g>>8 > 240 && b>>8 > 240)
}

func TestEncode_NoUpscale(t *testing.T) {
	b64, err := EncodeBytes(pngBytes(t, 40, 20, color.Black), ReferenceMaxDimension)
	assert.Equal(t, nil, err)

	bounds := decodeResult(t, b64).Bounds()
	assert.Equal(t, 40, bounds.Dx())
	assert.Equal(t, 20, bounds.Dy())
}

func TestEncode_RejectsGarbage(t *testing.T) {
	_, err := EncodeBytes([]byte("not an image"), PostMaxDimension)
	assert.NotEqual(t, nil, err)
}

func TestFromURL(t *testing.T) {
	large := pngBytes(t, 2048, 1024, color.White)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			assert.Equal(t, browserUserAgent, r.Header.Get("User-Agent"))
			w.Write(large)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewPreparer(time.Second)

	b64, ok := p.FromURL(context.Background(), srv.URL+"/ok.png")
	assert.Equal(t, true, ok)
	bounds := decodeResult(t, b64).Bounds()
	assert.Equal(t, 1024, bounds.Dx())
	assert.Equal(t, 512, bounds.Dy())

	_, ok = p.FromURL(context.Background(), srv.URL+"/missing.png")
	assert.Equal(t, false, ok)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref_1.png")
	if err := os.WriteFile(path, pngBytes(t, 1000, 1000, color.Black), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	p := NewPreparer(time.Second)

	b64, ok := p.FromFile(path)
	assert.Equal(t, true, ok)
	assert.Equal(t, 512, decodeResult(t, b64).Bounds().Dx())

	_, ok = p.FromFile(filepath.Join(dir, "missing.png"))
	assert.Equal(t, false, ok)
}
