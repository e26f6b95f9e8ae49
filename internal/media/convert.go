package media

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"path"
	"strings"

	"github.com/gen2brain/heic"
)

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 80

var legacyTypes = map[string]bool{
	"image/heic":          true,
	"image/heif":          true,
	"image/heic-sequence": true,
	"image/heif-sequence": true,
}

// IsLegacyImage reports whether f is a HEIC/HEIF photo, judged by declared
// content type or file name suffix.
func IsLegacyImage(f File) bool {
	if legacyTypes[strings.ToLower(strings.TrimSpace(f.ContentType))] {
		return true
	}
	ext := strings.ToLower(path.Ext(f.Name))
	return ext == ".heic" || ext == ".heif"
}

// Converter turns a legacy image into a broadly displayable one.
type Converter interface {
	Convert(f File) (File, error)
}

// HEICConverter re-encodes HEIC/HEIF photos as JPEG.
type HEICConverter struct {
	Quality int
}

// Convert decodes f and returns a JPEG copy named after the original.
func (c HEICConverter) Convert(f File) (File, error) {
	img, err := heic.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, fmt.Errorf("decode %s: %w", f.Name, err)
	}

	quality := c.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return File{}, fmt.Errorf("encode %s: %w", f.Name, err)
	}

	return File{
		Name:        strings.TrimSuffix(f.Name, path.Ext(f.Name)) + ".jpg",
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}
