package omezarr

import (
	"encoding/xml"
	"fmt"
)

// dziImage is the Deep Zoom descriptor document.
type dziImage struct {
	XMLName  xml.Name `xml:"Image"`
	Xmlns    string   `xml:"xmlns,attr"`
	Format   string   `xml:"Format,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Size     dziSize  `xml:"Size"`
}

type dziSize struct {
	Width  int `xml:"Width,attr"`
	Height int `xml:"Height,attr"`
}

// GenerateDZI returns the Deep Zoom descriptor for one image of the store.
func (r *Reader) GenerateDZI(imageID int) ([]byte, error) {
	if imageID < 0 || imageID >= len(r.images) {
		return nil, fmt.Errorf("image index out of range: %d", imageID)
	}

	doc := dziImage{
		Xmlns:    "http://schemas.microsoft.com/deepzoom/2008",
		Format:   "jpeg",
		Overlap:  0,
		TileSize: r.metadata.TileSize,
		Size: dziSize{
			Width:  r.metadata.Width,
			Height: r.metadata.Height,
		},
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	return append([]byte(xml.Header), body...), nil
}
