package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // PNG format support

	"github.com/disintegration/imaging"
	"github.com/genricoloni/hificlock/internal/domain"
	"go.uber.org/zap"
)

const (
	jpegQuality = 90
	// coverSizeRatio is the share of the shorter screen side the player view
	// gives to the cover
	coverSizeRatio = 1.0
)

// CoverProcessor normalizes downloaded artwork for the kiosk: decoded,
// scaled down to fit the display, flattened and re-encoded as JPEG
type CoverProcessor struct {
	logger *zap.Logger
	res    *domain.ScreenResolution // Injected automatically by Fx
}

// NewCoverProcessor creates a new cover normalizer
func NewCoverProcessor(logger *zap.Logger, res *domain.ScreenResolution) *CoverProcessor {
	return &CoverProcessor{
		logger: logger,
		res:    res,
	}
}

// Process decodes imageData, fits it into the display bounds and encodes a JPEG.
// Images smaller than the bounds are never upscaled.
func (p *CoverProcessor) Process(ctx context.Context, imageData []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dy() == 0 || bounds.Dx() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	side := int(float64(min(p.res.Width, p.res.Height)) * coverSizeRatio)
	if side <= 0 {
		return nil, fmt.Errorf("invalid display resolution: %dx%d", p.res.Width, p.res.Height)
	}

	p.logger.Debug("Fitting cover",
		zap.String("format", format),
		zap.Int("src_w", bounds.Dx()), zap.Int("src_h", bounds.Dy()),
		zap.Int("max", side))
	fitted := imaging.Fit(img, side, side, imaging.Lanczos)

	// Transparent PNG covers would turn grey in JPEG; flatten onto black
	fb := fitted.Bounds()
	canvas := imaging.New(fb.Dx(), fb.Dy(), color.Black)
	result := imaging.Overlay(canvas, fitted, image.Pt(0, 0), 1.0)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, result, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	p.logger.Debug("Image processed successfully", zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}
