// Package palette provides the channel color palette for compositing.
package palette

// RGB is an 8-bit color used when blending channel rasters.
type RGB struct {
	R, G, B uint8
}

// named maps recognized color names to their blend colors.
var named = map[string]RGB{
	"red":     {255, 0, 0},
	"green":   {0, 255, 0},
	"blue":    {0, 0, 255},
	"yellow":  {255, 255, 0},
	"magenta": {255, 0, 255},
	"cyan":    {0, 255, 255},
	"white":   {255, 255, 255},
}

// defaultOrder is the palette order presented to viewer clients.
var defaultOrder = []string{"red", "green", "blue", "yellow", "magenta", "cyan", "white"}

// Default returns the recognized color names in presentation order.
func Default() []string {
	out := make([]string, len(defaultOrder))
	copy(out, defaultOrder)
	return out
}

// Resolve maps a color name to its blend color. Unknown names resolve to
// white so that a bad color renders visibly rather than failing the tile.
func Resolve(name string) RGB {
	if c, ok := named[name]; ok {
		return c
	}
	return named["white"]
}

// Known reports whether name is a recognized palette color.
func Known(name string) bool {
	_, ok := named[name]
	return ok
}
