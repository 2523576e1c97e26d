// Package api provides HTTP handlers for the slide server.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/immunoview/server/internal/cache"
	"github.com/immunoview/server/internal/catalog"
	"github.com/immunoview/server/internal/dzi"
	"github.com/immunoview/server/internal/ingest"
	"github.com/immunoview/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Catalog     *catalog.Scanner
	Tiles       *service.TileService
	Samples     *service.SampleService
	Ingest      *ingest.Reassembler
	Cache       *cache.Manager
	SlideDir    string
	SaveEnabled bool
	Colors      []string
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Tiles are already JPEG; only compress text payloads.
	r.Use(middleware.Compress(5, "application/json", "application/xml", "text/plain"))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/stats", statsHandler(cfg.Cache))
	r.Get("/samples.json", samplesHandler(cfg.Catalog, cfg.SlideDir, cfg.SaveEnabled, cfg.Colors))
	r.Post("/save/*", saveHandler(cfg.SlideDir, cfg.SaveEnabled))
	r.Post("/upload", uploadHandler(cfg.Ingest))
	r.Post("/sampleStats", sampleStatsHandler(cfg.Samples))
	r.Post("/deleteSample", deleteSampleHandler(cfg.Samples))

	// Deep Zoom routes. chi treats '.' as a param delimiter when the route
	// pattern carries an extension, so the final segment is captured whole
	// and its ".dzi" / "_files" / ".jpeg" suffix is stripped in the handler.
	r.Get("/{location}/{channels}/{rgb}/{colors}/{gains}/{descriptor}", descriptorHandler(cfg.Tiles))
	r.Get("/{location}/{channels}/{rgb}/{colors}/{gains}/{dir}/{level}/{tile}", tileHandler(cfg.Tiles))

	return r
}

// statsHandler reports cache occupancy and hit counters.
func statsHandler(m *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}

// samplesHandler lists discovered slides together with the viewer settings.
// A scan failure is reported as an empty catalog so the viewer still loads.
func samplesHandler(scanner *catalog.Scanner, slideDir string, saveEnabled bool, colors []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		location := r.URL.Query().Get("location")
		if location == "" {
			location = "public"
		}
		if strings.Contains(location, "..") {
			http.Error(w, "invalid location", http.StatusBadRequest)
			return
		}

		datasets, err := scanner.ListDatasets(filepath.Join(slideDir, location))
		if err != nil {
			log.Printf("Catalog scan failed for %s: %v", location, err)
			datasets = []catalog.Dataset{}
		}
		if datasets == nil {
			datasets = []catalog.Dataset{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"samples": datasets,
			"save":    saveEnabled,
			"colors":  colors,
		})
	}
}

// saveHandler persists viewer annotations next to the slide. Disabled
// deployments reject every request before reading the body.
func saveHandler(slideDir string, saveEnabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !saveEnabled {
			http.Error(w, "SAVE BLOCKED", http.StatusForbidden)
			return
		}

		rel := chi.URLParam(r, "*")
		if rel == "" || strings.Contains(rel, "..") {
			http.Error(w, "invalid sample path", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || !json.Valid(body) {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		dir := filepath.Join(slideDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(dir, 0755); err != nil {
			http.Error(w, "failed to save annotations", http.StatusInternalServerError)
			return
		}
		if err := os.WriteFile(filepath.Join(dir, "sample.json"), body, 0644); err != nil {
			http.Error(w, "failed to save annotations", http.StatusInternalServerError)
			return
		}

		w.Write([]byte("OK"))
	}
}

// uploadHandler accepts one chunk of a slide upload.
func uploadHandler(reassembler *ingest.Reassembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		defer file.Close()

		name := r.FormValue("name")
		chunkNumber, err := formInt(r, "chunkNumber", 0)
		if err != nil {
			http.Error(w, "invalid chunkNumber", http.StatusBadRequest)
			return
		}
		totalChunks, err := formInt(r, "totalChunks", 1)
		if err != nil {
			http.Error(w, "invalid totalChunks", http.StatusBadRequest)
			return
		}

		done, err := reassembler.PutChunk(name, chunkNumber, totalChunks, file)
		if err != nil {
			if errors.Is(err, ingest.ErrUnsupportedFileType) || errors.Is(err, ingest.ErrInvalidChunk) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Printf("Upload failed for %s chunk %d: %v", name, chunkNumber, err)
			http.Error(w, "upload failed", http.StatusInternalServerError)
			return
		}

		message := "Chunk Uploaded"
		if done {
			message = "File Uploaded"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": message})
	}
}

// formInt parses an optional integer form field. An absent field takes the
// default; a present but non-numeric value is an error, never a default.
func formInt(r *http.Request, key string, def int) (int, error) {
	v := r.FormValue(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// sampleStatsHandler reports the annotated samples and their disk footprint.
func sampleStatsHandler(samples *service.SampleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, gb, err := samples.ListSamples()
		if err != nil {
			log.Printf("Sample stats failed: %v", err)
			http.Error(w, "failed to collect sample stats", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"samples":  names,
			"dataUsed": gb,
		})
	}
}

// deleteSampleHandler removes one sample from the public area.
func deleteSampleHandler(samples *service.SampleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Sample string `json:"sample"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		if err := samples.DeleteSample(req.Sample); err != nil {
			if errors.Is(err, service.ErrSampleNotFound) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"message": "Sample not found"})
				return
			}
			log.Printf("Delete failed for %s: %v", req.Sample, err)
			http.Error(w, "failed to delete sample", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Samples deleted"})
	}
}

// descriptorHandler serves the DZI XML descriptor for a slide.
func descriptorHandler(tiles *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, ok := dzi.TrimDescriptor(chi.URLParam(r, "descriptor"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		req, err := dzi.ParseTileRequest(
			chi.URLParam(r, "location"),
			chi.URLParam(r, "channels"),
			chi.URLParam(r, "rgb"),
			chi.URLParam(r, "colors"),
			chi.URLParam(r, "gains"),
			file,
		)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := tiles.GetDescriptor(req.Location, req.File)
		if err != nil {
			writeTileError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/xml")
		w.Write(data)
	}
}

// tileHandler serves one rendered JPEG tile.
func tileHandler(tiles *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, ok := dzi.TrimFilesDir(chi.URLParam(r, "dir"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		req, err := dzi.ParseTileRequest(
			chi.URLParam(r, "location"),
			chi.URLParam(r, "channels"),
			chi.URLParam(r, "rgb"),
			chi.URLParam(r, "colors"),
			chi.URLParam(r, "gains"),
			file,
		)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Level, err = dzi.ParseLevel(chi.URLParam(r, "level")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.X, req.Y, err = dzi.ParseTileName(chi.URLParam(r, "tile")); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := tiles.GetTile(req)
		if err != nil {
			writeTileError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

func writeTileError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrDatasetNotFound) {
		http.NotFound(w, r)
		return
	}
	log.Printf("Tile request %s failed: %v", r.URL.Path, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
