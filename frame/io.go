package frame

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "golang.org/x/image/webp"
)

// Load decodes a PNG, JPEG, GIF or WebP file into a Buffer.
func Load(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return FromImage(img), nil
}

// SavePNG writes b as a PNG, favouring speed over size since frames are
// intermediate files.
func SavePNG(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, b.Image()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FileName builds the zero-padded name used for frame sequences,
// e.g. FileName("frame", 7) == "frame_00007.png".
func FileName(prefix string, index int) string {
	return fmt.Sprintf("%s_%05d.png", prefix, index)
}

// Pattern is the printf-style sequence pattern the external engine understands.
func Pattern(prefix string) string {
	return prefix + "_%05d.png"
}

// ParseIndex extracts the sequence number from a name produced by FileName.
func ParseIndex(name string) (int, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	i := strings.LastIndexByte(base, '_')
	if i < 0 || i == len(base)-1 {
		return 0, fmt.Errorf("no frame index in %q", name)
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bad frame index in %q", name)
	}
	return n, nil
}
