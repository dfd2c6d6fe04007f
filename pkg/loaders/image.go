package loaders

import (
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"io"
	"os"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

// ErrUnsupportedImage is returned for files no registered decoder reads.
// pbrt also accepts EXR, PFM and TGA textures, which are reported this way
// rather than as broken files.
var ErrUnsupportedImage = errors.New("unsupported image format")

// ImageInfo describes an image file without decoding its pixels
type ImageInfo struct {
	Width  int
	Height int
	Format string
	MIME   string
}

// ReadImageInfo reads just enough of filename to report its format and size
func ReadImageInfo(filename string) (ImageInfo, error) {
	file, err := os.Open(filename)
	if err != nil {
		return ImageInfo{}, errors.Wrap(err, "failed to open image file")
	}
	defer file.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return ImageInfo{}, errors.Wrap(err, "failed to read image header")
	}
	head = head[:n]

	kind, _ := filetype.Match(head)
	info := ImageInfo{Format: kind.Extension, MIME: kind.MIME.Value}
	if !filetype.IsImage(head) {
		return info, errors.Wrapf(ErrUnsupportedImage, "%s", filename)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return info, errors.Wrap(err, "failed to rewind image file")
	}
	cfg, format, err := image.DecodeConfig(file)
	if errors.Is(err, image.ErrFormat) {
		return info, errors.Wrapf(ErrUnsupportedImage, "%s (%s)", filename, info.Format)
	}
	if err != nil {
		return info, errors.Wrap(err, "failed to decode image header")
	}
	info.Width, info.Height, info.Format = cfg.Width, cfg.Height, format
	return info, nil
}
