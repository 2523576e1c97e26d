package cache

import (
	"testing"
	"time"
)

func TestTileKey(t *testing.T) {
	base := TileKey("public", "slideA", 12, 3, 4, []int{0, 1}, []string{"red", "green"}, []int{100, 50}, false)

	t.Run("deterministic", func(t *testing.T) {
		again := TileKey("public", "slideA", 12, 3, 4, []int{0, 1}, []string{"red", "green"}, []int{100, 50}, false)
		if again != base {
			t.Fatalf("expected stable key, got %q vs %q", base, again)
		}
	})

	t.Run("distinctRecipes", func(t *testing.T) {
		variants := []string{
			TileKey("public", "slideA", 12, 3, 4, []int{0}, []string{"red", "green"}, []int{100, 50}, false),
			TileKey("public", "slideA", 12, 3, 4, []int{0, 1}, []string{"red", "blue"}, []int{100, 50}, false),
			TileKey("public", "slideA", 12, 3, 4, []int{0, 1}, []string{"red", "green"}, []int{100, 80}, false),
			TileKey("public", "slideA", 12, 3, 4, []int{0, 1}, []string{"red", "green"}, []int{100, 50}, true),
			TileKey("public", "slideA", 12, 3, 5, []int{0, 1}, []string{"red", "green"}, []int{100, 50}, false),
			TileKey("public", "slideB", 12, 3, 4, []int{0, 1}, []string{"red", "green"}, []int{100, 50}, false),
		}
		for i, v := range variants {
			if v == base {
				t.Errorf("variant %d collides with base key %q", i, base)
			}
		}
	})
}

func TestDescriptorKey(t *testing.T) {
	if DescriptorKey("public", "slideA") == DescriptorKey("public", "slideB") {
		t.Error("expected distinct descriptor keys per file")
	}
}

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager(Config{TileCacheSizeMB: 8, TileTTL: time.Minute, DescriptorCacheSize: 4})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	if _, ok := m.GetTile("missing"); ok {
		t.Error("expected miss for unknown tile key")
	}
	if err := m.SetTile("k", []byte{1, 2, 3}); err != nil {
		t.Fatalf("SetTile failed: %v", err)
	}
	if data, ok := m.GetTile("k"); !ok || len(data) != 3 {
		t.Errorf("unexpected tile hit: %v %v", data, ok)
	}

	m.SetDescriptor("d", []byte("<xml/>"))
	if data, ok := m.GetDescriptor("d"); !ok || string(data) != "<xml/>" {
		t.Errorf("unexpected descriptor hit: %q %v", data, ok)
	}
}
