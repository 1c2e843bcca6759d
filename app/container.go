package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/crmado/realtime-item-monitor/config"
	"github.com/crmado/realtime-item-monitor/domain/detect"
	"github.com/crmado/realtime-item-monitor/domain/frame"
	"github.com/crmado/realtime-item-monitor/domain/partlib"
)

// Container assembles the Frame Source, Method Registry, Orchestrator and
// part library into a runnable pipeline.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Source       frame.Source
	Registry     *detect.Registry
	Orchestrator *Orchestrator
	Parts        *partlib.Store
	Preview      *PreviewObserver
}

// BuildContainer wires the pipeline from a loaded Config. device selects
// the Frame Source: "synthetic" for the in-memory generator, a path to a
// video file, or a camera device identifier understood by gocv's
// VideoCapture backend.
func BuildContainer(cfg *config.Config, logger *slog.Logger, cfgPath, device string) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	c.Source = newFrameSource(device, logger)
	c.Registry = detect.NewRegistry()

	orch, err := NewOrchestrator(c.Source, c.Registry, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Orchestrator = orch

	c.Preview = NewPreviewObserver(320)
	c.Orchestrator.RegisterObserver(c.Preview)

	if len(cfg.PartLibrary) > 0 {
		store, err := partlib.NewStore(cfgPath, cfg, logger)
		if err != nil {
			return nil, err
		}
		c.Parts = store
	}

	return c, nil
}

// videoFileExtensions lists the file extensions routed to the VideoFile
// Frame Source variant rather than Camera, for device strings naming a
// path that does not (yet) exist on disk.
var videoFileExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".mjpeg": true, ".mjpg": true,
}

// newFrameSource selects a Frame Source variant by device string (§4.A):
// "synthetic" (or empty) for the in-memory generator, a path naming an
// existing file or a recognized video extension for VideoFile, and
// anything else (a numeric index or backend-specific URI) for Camera.
func newFrameSource(device string, logger *slog.Logger) frame.Source {
	switch device {
	case "", "synthetic":
		return frame.NewSynthetic(blankSyntheticFrame, 0)
	}

	if info, err := os.Stat(device); err == nil && !info.IsDir() {
		return frame.NewVideoFile(device, logger)
	}
	if videoFileExtensions[strings.ToLower(filepath.Ext(device))] {
		return frame.NewVideoFile(device, logger)
	}
	return frame.NewCamera(device, logger)
}

// Run starts the pipeline and blocks until ctx is cancelled.
func (c *Container) Run(ctx context.Context) error {
	if err := c.Orchestrator.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return c.Orchestrator.Stop()
}

// Close releases resources not tied to ctx (the part library watch).
func (c *Container) Close() error {
	if c.Parts != nil {
		return c.Parts.Close()
	}
	return nil
}
