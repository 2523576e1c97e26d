// Package omezarr provides a reader for OME-Zarr (OME-NGFF v0.4, Zarr v2)
// pyramid stores.
package omezarr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Reader provides access to one OME-Zarr pyramid store.
type Reader struct {
	basePath string
	metadata *Metadata
	images   []*seriesImage
	decoder  *zstd.Decoder
}

// Metadata describes the store for catalog responses and DZI generation.
type Metadata struct {
	Channels     []string `json:"channels"`
	ChannelCount int      `json:"channel_count"`
	Levels       int      `json:"levels"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	TileSize     int      `json:"tile_size"`
	IsRGB        bool     `json:"is_rgb"`
}

// seriesImage is one image of the store with its pyramid levels.
type seriesImage struct {
	path       string
	levels     []*pyramidLevel
	channelDim int // -1 when the arrays carry no channel axis
	yDim, xDim int
}

// pyramidLevel is one resolution level backed by a Zarr v2 array.
type pyramidLevel struct {
	path string
	meta *arrayMeta
}

// arrayMeta mirrors a Zarr v2 .zarray document.
type arrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              string          `json:"dtype"`
	Compressor         *compressorMeta `json:"compressor"`
	FillValue          interface{}     `json:"fill_value"`
	Order              string          `json:"order"`
	DimensionSeparator string          `json:"dimension_separator"`
}

type compressorMeta struct {
	ID string `json:"id"`
}

// groupAttrs mirrors the subset of .zattrs this reader needs.
type groupAttrs struct {
	Multiscales []multiscaleMeta `json:"multiscales"`
	Omero       *omeroMeta       `json:"omero"`
}

type multiscaleMeta struct {
	Datasets []struct {
		Path string `json:"path"`
	} `json:"datasets"`
	Axes []axisMeta `json:"axes"`
}

type axisMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type omeroMeta struct {
	Channels []struct {
		Label string `json:"label"`
		Color string `json:"color"`
	} `json:"channels"`
	Rdefs struct {
		Model string `json:"model"`
	} `json:"rdefs"`
}

// Open creates a reader for the store at basePath.
func Open(basePath string) (*Reader, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a zarr store: %s", basePath)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	r := &Reader{
		basePath: basePath,
		decoder:  decoder,
	}

	if err := r.loadImages(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.loadMetadata(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

// Metadata returns the store metadata for image 0.
func (r *Reader) Metadata() *Metadata {
	return r.metadata
}

// Close releases decoder resources.
func (r *Reader) Close() error {
	if r.decoder != nil {
		r.decoder.Close()
	}
	return nil
}

// loadImages discovers the image groups. The common layout keeps a single
// multiscale image at the store root; bioformats2raw output nests images
// under numbered subgroups instead.
func (r *Reader) loadImages() error {
	attrs, err := readGroupAttrs(r.basePath)
	if err == nil && len(attrs.Multiscales) > 0 {
		img, err := r.loadImage(r.basePath, attrs)
		if err != nil {
			return err
		}
		r.images = []*seriesImage{img}
		return nil
	}

	for i := 0; ; i++ {
		sub := filepath.Join(r.basePath, strconv.Itoa(i))
		subAttrs, err := readGroupAttrs(sub)
		if err != nil || len(subAttrs.Multiscales) == 0 {
			break
		}
		img, err := r.loadImage(sub, subAttrs)
		if err != nil {
			return err
		}
		r.images = append(r.images, img)
	}

	if len(r.images) == 0 {
		return fmt.Errorf("no multiscale image found in %s", r.basePath)
	}
	return nil
}

func (r *Reader) loadImage(path string, attrs *groupAttrs) (*seriesImage, error) {
	ms := attrs.Multiscales[0]
	if len(ms.Datasets) == 0 {
		return nil, fmt.Errorf("multiscale in %s has no datasets", path)
	}

	img := &seriesImage{path: path}
	for _, ds := range ms.Datasets {
		lvlPath := filepath.Join(path, filepath.FromSlash(ds.Path))
		meta, err := readArrayMeta(lvlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load level %q: %w", ds.Path, err)
		}
		if len(meta.Shape) < 2 || len(meta.Shape) != len(meta.Chunks) {
			return nil, fmt.Errorf("invalid array shape/chunks in %s", lvlPath)
		}
		img.levels = append(img.levels, &pyramidLevel{path: lvlPath, meta: meta})
	}

	rank := len(img.levels[0].meta.Shape)
	img.yDim = rank - 2
	img.xDim = rank - 1
	img.channelDim = channelDim(ms.Axes, rank)

	return img, nil
}

// channelDim locates the channel axis. Axes metadata wins; without it the
// conventional layouts are [c,y,x] and [t,c,z,y,x].
func channelDim(axes []axisMeta, rank int) int {
	for i, ax := range axes {
		if ax.Name == "c" || ax.Type == "channel" {
			return i
		}
	}
	if len(axes) > 0 {
		return -1
	}
	switch rank {
	case 3:
		return 0
	case 5:
		return 1
	}
	return -1
}

func (r *Reader) loadMetadata() error {
	img := r.images[0]
	base := img.levels[0].meta

	md := &Metadata{
		Levels: len(img.levels),
		Width:  base.Shape[img.xDim],
		Height: base.Shape[img.yDim],
	}

	md.TileSize = base.Chunks[img.xDim]
	if md.TileSize <= 0 {
		md.TileSize = 256
	}

	md.ChannelCount = 1
	if img.channelDim >= 0 {
		md.ChannelCount = base.Shape[img.channelDim]
	}

	attrs, err := readGroupAttrs(img.path)
	if err == nil && attrs.Omero != nil {
		for _, ch := range attrs.Omero.Channels {
			md.Channels = append(md.Channels, ch.Label)
		}
		md.IsRGB = strings.EqualFold(attrs.Omero.Rdefs.Model, "rgb")
	}
	for len(md.Channels) < md.ChannelCount {
		md.Channels = append(md.Channels, fmt.Sprintf("Channel %d", len(md.Channels)))
	}
	md.Channels = md.Channels[:md.ChannelCount]

	r.metadata = md
	return nil
}

func readGroupAttrs(path string) (*groupAttrs, error) {
	data, err := os.ReadFile(filepath.Join(path, ".zattrs"))
	if err != nil {
		return nil, err
	}
	var attrs groupAttrs
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse .zattrs in %s: %w", path, err)
	}
	return &attrs, nil
}

func readArrayMeta(path string) (*arrayMeta, error) {
	data, err := os.ReadFile(filepath.Join(path, ".zarray"))
	if err != nil {
		return nil, err
	}
	var meta arrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse .zarray in %s: %w", path, err)
	}
	return &meta, nil
}

// dtypeInfo parses a Zarr v2 dtype string. Only 8- and 16-bit unsigned
// sample formats occur in the supported slide pyramids.
func dtypeInfo(dt string) (size int, bigEndian bool, err error) {
	switch dt {
	case "|u1", "<u1", ">u1":
		return 1, false, nil
	case "<u2":
		return 2, false, nil
	case ">u2":
		return 2, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported zarr dtype: %s", dt)
	}
}

// readChunk reads and decompresses one chunk file. A missing chunk file is
// an all-fill chunk and returns nil with no error.
func (r *Reader) readChunk(lvl *pyramidLevel, key string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(lvl.path, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if lvl.meta.Compressor == nil {
		return raw, nil
	}

	switch lvl.meta.Compressor.ID {
	case "zstd":
		out, err := r.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress failed: %w", err)
		}
		return out, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress failed: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress failed: %w", err)
		}
		return out, nil
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress failed: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("zlib decompress failed: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported zarr compressor: %s", lvl.meta.Compressor.ID)
	}
}

// chunkKey encodes chunk grid indices using the array's separator.
func chunkKey(meta *arrayMeta, indices []int) string {
	sep := meta.DimensionSeparator
	if sep == "" {
		sep = "."
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, sep)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
