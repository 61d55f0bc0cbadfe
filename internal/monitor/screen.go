package monitor

import (
	"github.com/genricoloni/hificlock/internal/domain"
	"github.com/kbinani/screenshot"
	"go.uber.org/zap"
)

// KioskResolution is the panel the daemon was built for
var KioskResolution = domain.ScreenResolution{Width: 800, Height: 800}

// NewScreenResolution returns the configured display size, falling back to
// the primary screen and then to the kiosk panel
func NewScreenResolution(logger *zap.Logger, configured domain.ScreenResolution) *domain.ScreenResolution {
	if configured.Width > 0 && configured.Height > 0 {
		logger.Info("Using configured screen resolution",
			zap.Int("width", configured.Width),
			zap.Int("height", configured.Height))
		return &configured
	}

	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		logger.Warn("No active displays detected, falling back to kiosk resolution",
			zap.Int("width", KioskResolution.Width),
			zap.Int("height", KioskResolution.Height))
		res := KioskResolution
		return &res
	}

	// Use primary monitor (index 0)
	bounds := screenshot.GetDisplayBounds(0)
	res := &domain.ScreenResolution{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	logger.Info("Screen resolution detected",
		zap.Int("width", res.Width),
		zap.Int("height", res.Height))

	return res
}
