// Package dzi parses Deep Zoom request paths into tile requests.
//
// The viewer encodes the full rendering recipe in the URL:
//
//	/{location}/{channels}/{rgb}/{colors}/{gains}/{name}.dzi
//	/{location}/{channels}/{rgb}/{colors}/{gains}/{name}_files/{level}/{x}_{y}.jpeg
//
// Channels and gains are semicolon-separated integers, colors are
// semicolon-separated palette names.
package dzi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedParameter reports a request path segment that does not parse.
var ErrMalformedParameter = errors.New("malformed request parameter")

// TileRequest is a fully decoded tile or descriptor request.
type TileRequest struct {
	Location string
	File     string
	Level    int
	X        int
	Y        int
	Channels []int
	Colors   []string
	Gains    []int
	IsRGB    bool
}

// ParseChannels decodes a semicolon-separated channel index list.
func ParseChannels(s string) ([]int, error) {
	return parseIntList(s, "channels")
}

// ParseGains decodes a semicolon-separated gain percentage list.
func ParseGains(s string) ([]int, error) {
	return parseIntList(s, "gains")
}

func parseIntList(s, what string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty %s list", ErrMalformedParameter, what)
	}
	parts := strings.Split(s, ";")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %q", ErrMalformedParameter, what, p)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseColors decodes a semicolon-separated palette name list. Unknown names
// are resolved to a fallback at render time, so no validation happens here.
func ParseColors(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}

// ParseRGBFlag decodes the RGB pass-through flag.
func ParseRGBFlag(s string) (bool, error) {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: rgb flag %q", ErrMalformedParameter, s)
	}
	return v, nil
}

// ParseLevel decodes a Deep Zoom level segment.
func ParseLevel(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: level %q", ErrMalformedParameter, s)
	}
	return v, nil
}

// ParseTileName decodes a "{x}_{y}.jpeg" tile file name.
func ParseTileName(s string) (x, y int, err error) {
	name, ok := strings.CutSuffix(s, ".jpeg")
	if !ok {
		name, ok = strings.CutSuffix(s, ".jpg")
	}
	if !ok {
		return 0, 0, fmt.Errorf("%w: tile name %q", ErrMalformedParameter, s)
	}
	xs, ys, found := strings.Cut(name, "_")
	if !found {
		return 0, 0, fmt.Errorf("%w: tile name %q", ErrMalformedParameter, s)
	}
	x, err = strconv.Atoi(xs)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: tile name %q", ErrMalformedParameter, s)
	}
	y, err = strconv.Atoi(ys)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: tile name %q", ErrMalformedParameter, s)
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("%w: tile name %q", ErrMalformedParameter, s)
	}
	return x, y, nil
}

// TrimDescriptor strips the ".dzi" suffix from a descriptor file name.
func TrimDescriptor(s string) (string, bool) {
	return strings.CutSuffix(s, ".dzi")
}

// TrimFilesDir strips the "_files" suffix from a tile directory name.
func TrimFilesDir(s string) (string, bool) {
	return strings.CutSuffix(s, "_files")
}

// ParseTileRequest decodes the shared recipe segments of a tile URL. Level
// and tile coordinates are filled in by the caller for tile requests.
func ParseTileRequest(location, channels, rgb, colors, gains, file string) (TileRequest, error) {
	chs, err := ParseChannels(channels)
	if err != nil {
		return TileRequest{}, err
	}
	isRGB, err := ParseRGBFlag(rgb)
	if err != nil {
		return TileRequest{}, err
	}
	gs, err := ParseGains(gains)
	if err != nil {
		return TileRequest{}, err
	}
	return TileRequest{
		Location: location,
		File:     file,
		Channels: chs,
		Colors:   ParseColors(colors),
		Gains:    gs,
		IsRGB:    isRGB,
	}, nil
}
