// Package main is the entry point for the ImmunoView slide server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/immunoview/server/internal/api"
	"github.com/immunoview/server/internal/cache"
	"github.com/immunoview/server/internal/catalog"
	"github.com/immunoview/server/internal/config"
	"github.com/immunoview/server/internal/data/omezarr"
	"github.com/immunoview/server/internal/ingest"
	"github.com/immunoview/server/internal/render"
	"github.com/immunoview/server/internal/service"
	"github.com/immunoview/server/internal/sysops"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	host := flag.String("host", "", "Override listen host")
	port := flag.Int("port", 0, "Override listen port")
	slideDir := flag.String("slide-dir", "", "Override slide directory")
	save := flag.Bool("save", false, "Enable annotation saving")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags win over config file and environment
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *slideDir != "" {
		cfg.Storage.SlideDir = *slideDir
	}
	if *save {
		cfg.Viewer.Save = true
	}

	log.Printf("Starting ImmunoView server on %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Slide directory: %s (save=%v)", cfg.Storage.SlideDir, cfg.Viewer.Save)

	// Initialize cache manager (shared across all slides)
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB:     cfg.Cache.TileSizeMB,
		TileTTL:             time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		DescriptorCacheSize: cfg.Cache.DescriptorCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	tileService := service.NewTileService(service.TileServiceConfig{
		SlideDir: cfg.Storage.SlideDir,
		Cache:    cacheManager,
		Encoder:  render.NewEncoder(render.Config{}),
		Open: func(path string) (service.PyramidReader, error) {
			return omezarr.Open(path)
		},
	})
	defer tileService.Close()

	scanner := catalog.NewScanner(func(path string) (catalog.MetadataReader, error) {
		return omezarr.Open(path)
	})

	sampleService := service.NewSampleService(
		cfg.Storage.SlideDir,
		sysops.NewExecOps(cfg.Tools.DUPath, cfg.Tools.RMPath),
	)

	reassembler := ingest.NewReassembler(cfg.Storage.TmpDir, cfg.Storage.ImportDir)

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Catalog:     scanner,
		Tiles:       tileService,
		Samples:     sampleService,
		Ingest:      reassembler,
		Cache:       cacheManager,
		SlideDir:    cfg.Storage.SlideDir,
		SaveEnabled: cfg.Viewer.Save,
		Colors:      cfg.Viewer.Colors,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
