package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Diagnostics stores a screenshot and the page source when an action fails.
// Capturing is best effort; problems are logged and never returned.
type Diagnostics struct {
	dir    string
	drv    driver.Driver
	logger *zap.Logger
}

// NewDiagnostics returns nil when dir is empty, which disables capturing.
func NewDiagnostics(dir string, drv driver.Driver, logger *zap.Logger) *Diagnostics {
	if dir == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnostics{dir: dir, drv: drv, logger: logger.Named("diagnostics")}
}

// Capture writes the artifacts and returns the paths written.
func (d *Diagnostics) Capture(ctx context.Context, action string, loc locator.Locator) []string {
	if d == nil {
		return nil
	}
	// The action may have failed because ctx ended; capture anyway.
	ctx = context.WithoutCancel(ctx)

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.Warn("Cannot create capture directory.", zap.String("dir", d.dir), zap.Error(err))
		return nil
	}
	base := filepath.Join(d.dir, fmt.Sprintf("%s-%s", action, uuid.NewString()))
	var written []string

	if png, err := d.drv.Screenshot(ctx); err == nil {
		written = d.write(written, base+".png", png)
	} else if !errors.Is(err, driver.ErrUnsupported) {
		d.logger.Warn("Screenshot capture failed.", zap.Error(err))
	}

	if src, err := d.drv.PageSource(ctx); err == nil {
		written = d.write(written, base+".html", []byte(src))
	} else if !errors.Is(err, driver.ErrUnsupported) {
		d.logger.Warn("Page source capture failed.", zap.Error(err))
	}

	if len(written) > 0 {
		d.logger.Info("Captured diagnostics.",
			zap.String("action", action),
			zap.Stringer("locator", loc),
			zap.String("files", strings.Join(written, ", ")))
	}
	return written
}

func (d *Diagnostics) write(written []string, path string, data []byte) []string {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.Warn("Cannot write capture.", zap.String("path", path), zap.Error(err))
		return written
	}
	return append(written, path)
}
