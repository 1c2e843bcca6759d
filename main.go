package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/crmado/realtime-item-monitor/app"
	"github.com/crmado/realtime-item-monitor/apperr"
	"github.com/crmado/realtime-item-monitor/config"
)

func main() {
	os.Exit(run())
}

// run implements §6's CLI/operator surface: start, stop, reset counter,
// reset packaging, select part, select method, set target, save config.
// An invalid config file falls back to built-in defaults rather than
// aborting (§6); exit codes: 0 normal, 2 config path/pipeline setup
// failure, 3 camera unavailable at startup in headless mode.
func run() int {
	configPath := flag.String("config", "", "path to config file (defaults to the XDG config location)")
	device := flag.String("device", "synthetic", "frame source: \"synthetic\", a video file path, or a camera device id")
	debug := flag.Bool("debug", false, "enable debug-level logging and per-280-frame stats")
	flag.Parse()

	path := *configPath
	if path == "" {
		p, err := config.DefaultPath("config.json")
		if err != nil {
			fmt.Fprintln(os.Stderr, "resolve config path:", err)
			return 2
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		// §6: an invalid config file names the first violated invariant but
		// must not be fatal — log it visibly and keep running on built-in
		// defaults, mirroring the original implementation's load_config.
		NewLogger(slog.LevelInfo).Error("config file invalid, using built-in defaults", "path", path, "error", err)
		cfg = config.DefaultConfig()
	}
	if *debug {
		cfg.Performance.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Performance.Debug {
		level = slog.LevelDebug
	}
	logger := NewLogger(level)

	container, err := app.BuildContainer(cfg, logger, path, *device)
	if err != nil {
		if apperr.Is(err, apperr.SourceUnavailable) {
			logger.Error("frame source unavailable at startup", "error", err)
			return 3
		}
		logger.Error("failed to build pipeline", "error", err)
		return 2
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- container.Run(ctx) }()

	go commandLoop(ctx, stop, container, path, logger)

	if err := <-runErr; err != nil {
		if apperr.Is(err, apperr.SourceUnavailable) {
			logger.Error("frame source failed", "error", err)
			return 3
		}
		logger.Error("pipeline terminated with error", "error", err)
		return 2
	}
	return 0
}

// commandLoop reads line-oriented commands from stdin until ctx is
// cancelled or stdin closes, giving a headless operator the surface named
// in §6 without a GUI.
func commandLoop(ctx context.Context, stop context.CancelFunc, c *app.Container, path string, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := dispatchCommand(fields, stop, c, path); err != nil {
			logger.Warn("command failed", "command", fields[0], "error", err)
		}
	}
}

func dispatchCommand(fields []string, stop context.CancelFunc, c *app.Container, path string) error {
	switch fields[0] {
	case "start":
		c.Orchestrator.StartPackaging()
	case "stop":
		stop()
	case "reset-counter":
		c.Orchestrator.ResetCounter()
	case "reset-packaging":
		c.Orchestrator.ResetPackaging()
	case "select-part":
		if len(fields) < 2 {
			return fmt.Errorf("select-part requires a part_id")
		}
		return selectPart(c, fields[1])
	case "select-method":
		if len(fields) < 3 {
			return fmt.Errorf("select-method requires a part_id and method_id")
		}
		return selectMethod(c, fields[1], fields[2])
	case "set-target":
		if len(fields) < 2 {
			return fmt.Errorf("set-target requires a count")
		}
		target, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return err
		}
		c.Orchestrator.SetTarget(uint32(target))
	case "save-config":
		return config.Save(path, c.Config)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func selectPart(c *app.Container, partID string) error {
	if c.Parts == nil {
		return fmt.Errorf("no part library configured")
	}
	profile, ok := c.Parts.Find(partID)
	if !ok {
		return fmt.Errorf("unknown part_id %q", partID)
	}
	return c.Orchestrator.SetMethod(profile.PartID, profile.CurrentMethodID, currentMethodConfig(profile))
}

func selectMethod(c *app.Container, partID, methodID string) error {
	if c.Parts == nil {
		return fmt.Errorf("no part library configured")
	}
	profile, ok := c.Parts.Find(partID)
	if !ok {
		return fmt.Errorf("unknown part_id %q", partID)
	}
	for _, m := range profile.AvailableMethods {
		if m.MethodID == methodID {
			return c.Orchestrator.SetMethod(partID, methodID, m.Config)
		}
	}
	return fmt.Errorf("part %q has no method %q", partID, methodID)
}

func currentMethodConfig(profile config.PartProfile) config.DetectionConfig {
	for _, m := range profile.AvailableMethods {
		if m.MethodID == profile.CurrentMethodID {
			return m.Config
		}
	}
	return config.DetectionConfig{}
}
