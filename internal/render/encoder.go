// Package render encodes composited tile rasters as JPEG using fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"

	"github.com/fogleman/gg"

	"github.com/immunoview/server/internal/data/omezarr"
)

// Config contains encoder configuration.
type Config struct {
	JPEGQuality int
}

// Encoder converts composited rasters into JPEG tiles.
type Encoder struct {
	config     Config
	bufferPool sync.Pool
}

// NewEncoder creates a new tile encoder.
func NewEncoder(cfg Config) *Encoder {
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	return &Encoder{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// EncodeTile renders a raster onto an opaque black canvas and encodes it as
// JPEG. The raster carries pixels in native BGR order.
func (e *Encoder) EncodeTile(raster *omezarr.Raster) ([]byte, error) {
	if raster == nil || raster.Width <= 0 || raster.Height <= 0 {
		return nil, fmt.Errorf("empty raster")
	}

	img := image.NewRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	for p := 0; p < raster.Width*raster.Height; p++ {
		img.Pix[p*4+0] = raster.Pix[p*3+2] // R
		img.Pix[p*4+1] = raster.Pix[p*3+1] // G
		img.Pix[p*4+2] = raster.Pix[p*3+0] // B
		img.Pix[p*4+3] = 255
	}

	// Edge tiles vary in size, so contexts are not pooled.
	dc := gg.NewContext(raster.Width, raster.Height)
	dc.SetColor(color.Black)
	dc.Clear()
	dc.DrawImage(img, 0, 0)

	buf := e.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		e.bufferPool.Put(buf)
	}()

	if err := jpeg.Encode(buf, dc.Image(), &jpeg.Options{Quality: e.config.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
