package omezarr

import (
	"fmt"

	"github.com/immunoview/server/pkg/palette"
)

// Raster is a composited tile in the reader's native BGR channel order.
// Callers are expected to convert it to the transport order themselves.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8 // B, G, R interleaved
}

// maxDZILevel returns the highest Deep Zoom level for an image, i.e. the
// level at which the image is shown at full resolution.
func maxDZILevel(width, height int) int {
	m := width
	if height > m {
		m = height
	}
	lvl := 0
	for n := 1; n < m; n <<= 1 {
		lvl++
	}
	return lvl
}

// CompositeTile reads the addressed tile for each requested channel, applies
// the per-channel gain (percent), maps each channel through its palette
// color, and blends the results into a single raster. With isRGB set the
// first three requested channels pass through as R, G and B directly.
//
// dziLevel, tileX and tileY use Deep Zoom addressing: level maxDZILevel is
// full resolution and each step down halves both axes. Pyramid levels are
// assumed dyadic; levels beyond the stored pyramid are served from the
// coarsest level by striding.
func (r *Reader) CompositeTile(
	imageID int,
	dziLevel int,
	channels []int,
	intensities []int,
	colors []string,
	isRGB bool,
	tileX, tileY int,
) (*Raster, error) {
	if imageID < 0 || imageID >= len(r.images) {
		return nil, fmt.Errorf("image index out of range: %d", imageID)
	}
	img := r.images[imageID]

	maxLvl := maxDZILevel(r.metadata.Width, r.metadata.Height)
	if dziLevel < 0 || dziLevel > maxLvl {
		return nil, fmt.Errorf("invalid zoom level: %d (valid: 0-%d)", dziLevel, maxLvl)
	}

	// Map the DZI level to a pyramid level, striding when the requested
	// downsample exceeds what the pyramid stores.
	want := maxLvl - dziLevel
	lvlIdx := want
	step := 1
	if lvlIdx > len(img.levels)-1 {
		step = 1 << (lvlIdx - (len(img.levels) - 1))
		lvlIdx = len(img.levels) - 1
	}
	lvl := img.levels[lvlIdx]

	levelH := lvl.meta.Shape[img.yDim]
	levelW := lvl.meta.Shape[img.xDim]
	effH := ceilDiv(levelH, step)
	effW := ceilDiv(levelW, step)

	ts := r.metadata.TileSize
	x0 := tileX * ts
	y0 := tileY * ts
	if tileX < 0 || tileY < 0 || x0 >= effW || y0 >= effH {
		return nil, fmt.Errorf("tile out of range: %d_%d at level %d", tileX, tileY, dziLevel)
	}

	w := ts
	if x0+w > effW {
		w = effW - x0
	}
	h := ts
	if y0+h > effH {
		h = effH - y0
	}

	out := &Raster{
		Width:  w,
		Height: h,
		Pix:    make([]uint8, w*h*3),
	}

	for i, ch := range channels {
		if ch < 0 || ch >= r.metadata.ChannelCount {
			return nil, fmt.Errorf("channel index out of range: %d (channels=%d)", ch, r.metadata.ChannelCount)
		}

		plane, err := r.readPlane(img, lvlIdx, ch, y0*step, x0*step, h, w, step)
		if err != nil {
			return nil, fmt.Errorf("failed to read channel %d: %w", ch, err)
		}

		gain := 100
		if i < len(intensities) {
			gain = intensities[i]
		}

		if isRGB {
			if i > 2 {
				continue
			}
			// Native order is BGR: slot 0 is R, slot 2 is B.
			dst := 2 - i
			for p, v := range plane {
				out.Pix[p*3+dst] = clampAdd(out.Pix[p*3+dst], scale(v, gain))
			}
			continue
		}

		name := "white"
		if i < len(colors) {
			name = colors[i]
		}
		c := palette.Resolve(name)

		for p, v := range plane {
			s := int(scale(v, gain))
			out.Pix[p*3+0] = clampAdd(out.Pix[p*3+0], uint8(s*int(c.B)/255))
			out.Pix[p*3+1] = clampAdd(out.Pix[p*3+1], uint8(s*int(c.G)/255))
			out.Pix[p*3+2] = clampAdd(out.Pix[p*3+2], uint8(s*int(c.R)/255))
		}
	}

	return out, nil
}

// scale applies a gain percentage to a sample with clamping.
func scale(v uint8, gain int) uint8 {
	if gain < 0 {
		return 0
	}
	s := int(v) * gain / 100
	if s > 255 {
		return 255
	}
	return uint8(s)
}

func clampAdd(a, b uint8) uint8 {
	s := int(a) + int(b)
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// readPlane reads a single channel's region from one pyramid level into an
// 8-bit plane of outH x outW, sampling every step-th source pixel. Regions
// past the array edge stay at zero.
func (r *Reader) readPlane(
	img *seriesImage,
	lvlIdx, channel int,
	srcY0, srcX0, outH, outW, step int,
) ([]uint8, error) {
	lvl := img.levels[lvlIdx]
	meta := lvl.meta
	rank := len(meta.Shape)

	size, bigEndian, err := dtypeInfo(meta.DType)
	if err != nil {
		return nil, err
	}

	// Chunk-grid index and within-chunk offset for every leading dim.
	gridIdx := make([]int, rank)
	inChunk := make([]int, rank)
	if img.channelDim >= 0 {
		cchunk := meta.Chunks[img.channelDim]
		if cchunk <= 0 {
			return nil, fmt.Errorf("invalid chunk shape in %s", lvl.path)
		}
		gridIdx[img.channelDim] = channel / cchunk
		inChunk[img.channelDim] = channel % cchunk
	} else if channel != 0 {
		return nil, fmt.Errorf("channel index out of range: %d (no channel axis)", channel)
	}

	// Element strides within a chunk, C order.
	strides := make([]int, rank)
	acc := 1
	for d := rank - 1; d >= 0; d-- {
		strides[d] = acc
		acc *= meta.Chunks[d]
	}

	leadOff := 0
	for d := 0; d < rank; d++ {
		if d == img.yDim || d == img.xDim {
			continue
		}
		leadOff += inChunk[d] * strides[d]
	}

	chunkH := meta.Chunks[img.yDim]
	chunkW := meta.Chunks[img.xDim]
	if chunkH <= 0 || chunkW <= 0 {
		return nil, fmt.Errorf("invalid chunk shape in %s", lvl.path)
	}
	srcH := meta.Shape[img.yDim]
	srcW := meta.Shape[img.xDim]

	cache := make(map[string][]byte)
	getChunk := func(cy, cx int) ([]byte, error) {
		gridIdx[img.yDim] = cy
		gridIdx[img.xDim] = cx
		key := chunkKey(meta, gridIdx)
		if data, ok := cache[key]; ok {
			return data, nil
		}
		data, err := r.readChunk(lvl, key)
		if err != nil {
			return nil, err
		}
		cache[key] = data
		return data, nil
	}

	plane := make([]uint8, outH*outW)
	for j := 0; j < outH; j++ {
		sy := srcY0 + j*step
		if sy >= srcH {
			break
		}
		for i := 0; i < outW; i++ {
			sx := srcX0 + i*step
			if sx >= srcW {
				continue
			}

			data, err := getChunk(sy/chunkH, sx/chunkW)
			if err != nil {
				return nil, err
			}
			if data == nil {
				continue // missing chunk: fill value
			}

			off := (leadOff + (sy%chunkH)*strides[img.yDim] + (sx%chunkW)*strides[img.xDim]) * size
			if off+size > len(data) {
				return nil, fmt.Errorf("chunk too short in %s: need %d bytes, got %d", lvl.path, off+size, len(data))
			}

			switch size {
			case 1:
				plane[j*outW+i] = data[off]
			case 2:
				var v uint16
				if bigEndian {
					v = uint16(data[off])<<8 | uint16(data[off+1])
				} else {
					v = uint16(data[off]) | uint16(data[off+1])<<8
				}
				plane[j*outW+i] = uint8(v >> 8)
			}
		}
	}

	return plane, nil
}
