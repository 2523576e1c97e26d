// Package service provides business logic for the slide server.
package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/immunoview/server/internal/cache"
	"github.com/immunoview/server/internal/data/omezarr"
	"github.com/immunoview/server/internal/dzi"
	"github.com/immunoview/server/internal/render"
)

// ErrDatasetNotFound reports a request for a slide that does not exist.
var ErrDatasetNotFound = errors.New("dataset not found")

// PyramidReader is the store access the tile service needs.
type PyramidReader interface {
	Metadata() *omezarr.Metadata
	GenerateDZI(imageID int) ([]byte, error)
	CompositeTile(imageID, dziLevel int, channels, intensities []int, colors []string, isRGB bool, tileX, tileY int) (*omezarr.Raster, error)
	Close() error
}

// OpenFunc opens a pyramid store at the given path.
type OpenFunc func(path string) (PyramidReader, error)

// TileServiceConfig contains tile service configuration.
type TileServiceConfig struct {
	SlideDir string
	Cache    *cache.Manager
	Encoder  *render.Encoder
	Open     OpenFunc
}

// TileService serves DZI descriptors and rendered tiles.
type TileService struct {
	slideDir string
	cache    *cache.Manager
	encoder  *render.Encoder
	open     OpenFunc

	// Open readers are kept for the life of the process. Stores are
	// append-only on disk, so a stale reader is not a concern.
	readersMu sync.Mutex
	readers   map[string]PyramidReader
}

// NewTileService creates a new tile service.
func NewTileService(cfg TileServiceConfig) *TileService {
	return &TileService{
		slideDir: cfg.SlideDir,
		cache:    cfg.Cache,
		encoder:  cfg.Encoder,
		open:     cfg.Open,
		readers:  make(map[string]PyramidReader),
	}
}

// resolve maps a location and file name to a store path, rejecting any
// attempt to escape the slide directory.
func (s *TileService) resolve(location, file string) (string, error) {
	if strings.Contains(location, "..") || strings.Contains(file, "..") {
		return "", fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, location, file)
	}
	return filepath.Join(s.slideDir, location, file+".zarr"), nil
}

func (s *TileService) reader(location, file string) (PyramidReader, error) {
	path, err := s.resolve(location, file)
	if err != nil {
		return nil, err
	}

	s.readersMu.Lock()
	defer s.readersMu.Unlock()

	// A store can be deleted out from under a cached reader. Reusing it
	// would serve fill-value tiles for a dataset that no longer exists,
	// so the store path is verified on every request and a stale reader
	// is evicted.
	if _, statErr := os.Stat(path); statErr != nil {
		if r, ok := s.readers[path]; ok {
			r.Close()
			delete(s.readers, path)
		}
		return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, location, file)
	}

	if r, ok := s.readers[path]; ok {
		return r, nil
	}
	r, err := s.open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrDatasetNotFound, location, file, err)
	}
	s.readers[path] = r
	return r, nil
}

// GetDescriptor returns the DZI XML descriptor for a slide. The reader is
// resolved before the cache is consulted so a deleted store stops answering
// immediately instead of from stale cache entries.
func (s *TileService) GetDescriptor(location, file string) ([]byte, error) {
	r, err := s.reader(location, file)
	if err != nil {
		return nil, err
	}

	key := cache.DescriptorKey(location, file)
	if data, ok := s.cache.GetDescriptor(key); ok {
		return data, nil
	}

	data, err := r.GenerateDZI(0)
	if err != nil {
		return nil, err
	}
	s.cache.SetDescriptor(key, data)
	return data, nil
}

// GetTile renders one tile according to the request recipe and returns it
// JPEG-encoded.
func (s *TileService) GetTile(req dzi.TileRequest) ([]byte, error) {
	r, err := s.reader(req.Location, req.File)
	if err != nil {
		return nil, err
	}

	key := cache.TileKey(req.Location, req.File, req.Level, req.X, req.Y, req.Channels, req.Colors, req.Gains, req.IsRGB)
	if data, ok := s.cache.GetTile(key); ok {
		return data, nil
	}

	raster, err := r.CompositeTile(0, req.Level, req.Channels, req.Gains, req.Colors, req.IsRGB, req.X, req.Y)
	if err != nil {
		return nil, err
	}
	data, err := s.encoder.EncodeTile(raster)
	if err != nil {
		return nil, err
	}

	// Cache failures only cost a re-render.
	_ = s.cache.SetTile(key, data)
	return data, nil
}

// Close closes all open readers.
func (s *TileService) Close() {
	s.readersMu.Lock()
	defer s.readersMu.Unlock()
	for path, r := range s.readers {
		r.Close()
		delete(s.readers, path)
	}
}
