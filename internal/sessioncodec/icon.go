package sessioncodec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

// IconSize is the edge length of the raster stored for each tab icon.
const IconSize = 16

// NormalizeIcon converts an icon payload to the stored raster: a
// IconSize x IconSize PNG. Empty input stays empty.
func NormalizeIcon(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/png"), mt.Is("image/jpeg"), mt.Is("image/gif"):
	default:
		return nil, fmt.Errorf("unsupported icon type %s", mt.String())
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode icon: %w", err)
	}
	if b := src.Bounds(); b.Dx() == IconSize && b.Dy() == IconSize && mt.Is("image/png") {
		return append([]byte{}, data...), nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	return out.Bytes(), nil
}
