package render

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/immunoview/server/internal/data/omezarr"
)

func assertJPEG(t *testing.T, data []byte) {
	t.Helper()
	if len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 || data[2] != 0xFF {
		t.Fatalf("expected JPEG magic bytes, got % x", data[:min(len(data), 4)])
	}
}

func solidRaster(w, h int, b, g, r uint8) *omezarr.Raster {
	pix := make([]uint8, w*h*3)
	for p := 0; p < w*h; p++ {
		pix[p*3+0] = b
		pix[p*3+1] = g
		pix[p*3+2] = r
	}
	return &omezarr.Raster{Width: w, Height: h, Pix: pix}
}

func TestEncodeTile(t *testing.T) {
	e := NewEncoder(Config{JPEGQuality: 85})

	data, err := e.EncodeTile(solidRaster(16, 16, 0, 0, 200))
	if err != nil {
		t.Fatalf("EncodeTile failed: %v", err)
	}
	assertJPEG(t, data)

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode encoded tile: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 16 || bounds.Dy() != 16 {
		t.Errorf("unexpected tile dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	r, g, b, _ := img.At(8, 8).RGBA()
	if r>>8 < 150 {
		t.Errorf("expected strong red center pixel, got r=%d", r>>8)
	}
	if g>>8 > 60 || b>>8 > 60 {
		t.Errorf("expected dark green/blue, got g=%d b=%d", g>>8, b>>8)
	}
}

func TestEncodeTile_EdgeSizes(t *testing.T) {
	e := NewEncoder(Config{})

	// Edge tiles come in arbitrary sizes.
	for _, dims := range [][2]int{{1, 1}, {3, 7}, {256, 5}} {
		data, err := e.EncodeTile(solidRaster(dims[0], dims[1], 10, 10, 10))
		if err != nil {
			t.Fatalf("EncodeTile %dx%d failed: %v", dims[0], dims[1], err)
		}
		assertJPEG(t, data)
	}
}

func TestEncodeTile_EmptyRaster(t *testing.T) {
	e := NewEncoder(Config{})
	if _, err := e.EncodeTile(nil); err == nil {
		t.Error("expected error for nil raster")
	}
	if _, err := e.EncodeTile(&omezarr.Raster{}); err == nil {
		t.Error("expected error for zero-size raster")
	}
}
