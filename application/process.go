package application

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/glekoz/resize-service/internal/config"
	"github.com/glekoz/resize-service/internal/models"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ThumbnailContentType = "image/jpeg"

	// maxPixels rejects decompression bombs before the full decode.
	maxPixels = 100_000_000
)

// Thumbnailer turns an encoded original into a JPEG that fits the box.
type Thumbnailer struct {
	Width   int
	Height  int
	Quality int
}

func NewThumbnailer(cfg config.ThumbnailConfig) Thumbnailer {
	return Thumbnailer{Width: cfg.Width, Height: cfg.Height, Quality: cfg.Quality}
}

// Make decodes data, drops any alpha channel, shrinks the image into the
// box keeping its aspect ratio (never enlarging) and encodes it as JPEG.
// Undecodable input yields models.ErrDecode.
func (t Thumbnailer) Make(ctx context.Context, data []byte) ([]byte, error) {
	loc := "Thumbnailer.Make"
	if len(data) == 0 {
		return nil, models.NewError(loc, "empty input", models.ErrDecode, nil)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, models.NewError(loc, mt.String(), models.ErrDecode, nil)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewError(loc, mt.String(), models.ErrDecode, err)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, models.NewError(loc, fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), models.ErrDecode, nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewError(loc, mt.String(), models.ErrDecode, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, models.NewError(loc, "context", models.ErrDoRetry, err)
	}

	thumb := imaging.Fit(flatten(img), t.Width, t.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(t.Quality)); err != nil {
		return nil, models.NewError(loc, "encode", models.ErrDecode, err)
	}
	return buf.Bytes(), nil
}

// flatten makes every pixel opaque and keeps its color as is;
// transparency is lost on purpose.
func flatten(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
