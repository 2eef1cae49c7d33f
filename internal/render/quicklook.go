package render

import (
	"fmt"
	"image/png"
	"io"

	"golang.org/x/image/tiff"
)

// QuicklookFormat selects the quicklook encoding.
type QuicklookFormat string

const (
	FormatPNG  QuicklookFormat = "png"
	FormatTIFF QuicklookFormat = "tiff"
)

// WriteQuicklook rasterizes a layer and encodes it to w.
func WriteQuicklook(w io.Writer, l Layer, format QuicklookFormat) error {
	img, err := l.Image()
	if err != nil {
		return err
	}
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported quicklook format %q", format)
	}
}
