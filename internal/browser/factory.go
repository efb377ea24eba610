package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/internal/config"
)

// NewDriver creates the driver selected by cfg.Driver.
func NewDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.Driver {
	case config.DriverChromedp, "":
		return NewChromeDriver(ctx, cfg, logger)
	case config.DriverRod:
		return NewRodDriver(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}
