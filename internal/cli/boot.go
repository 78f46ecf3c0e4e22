package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ppiankov/hostpatch/internal/audit"
	"github.com/ppiankov/hostpatch/internal/bus"
	"github.com/ppiankov/hostpatch/internal/config"
	"github.com/ppiankov/hostpatch/internal/handlers"
	"github.com/ppiankov/hostpatch/internal/host"
	"github.com/ppiankov/hostpatch/internal/host/game"
	"github.com/ppiankov/hostpatch/internal/integrity"
	"github.com/ppiankov/hostpatch/internal/metrics"
	"github.com/ppiankov/hostpatch/internal/patch"
	"github.com/ppiankov/hostpatch/internal/patches"
	"github.com/ppiankov/hostpatch/internal/plugin"
)

// builtinImage names the embedded host image in logs and reports.
const builtinImage = "<builtin>"

// loadImage reads the configured host image, or the embedded one, and
// checks it against the pinned hash. A mismatch is fatal.
func loadImage(cfg *config.Config, logger *slog.Logger) (*host.Image, string, error) {
	name := cfg.Host.Image
	var data []byte
	if name == "" {
		name = builtinImage
		data = game.ImageYAML()
	} else {
		var err error
		data, err = os.ReadFile(name)
		if err != nil {
			return nil, name, fmt.Errorf("read host image: %w", err)
		}
	}

	checkName := name
	if name == builtinImage {
		checkName = ""
	}
	ok, err := integrity.Check(checkName, data, cfg.Host.ExpectedHash)
	if err != nil {
		return nil, name, err
	}
	if ok {
		logger.Info("host image verified", "image", name)
	} else {
		logger.Debug("host image not pinned", "image", name, "sha256", integrity.HashBytes(data))
	}

	img, err := host.ParseImage(data)
	if err != nil {
		return nil, name, err
	}
	return img, name, nil
}

// openSink opens the configured audit sink.
func openSink(cfg config.AuditConfig) (audit.Sink, error) {
	switch cfg.Sink {
	case "sqlite":
		return audit.OpenSQLite(cfg.Path)
	case "jsonl", "":
		return audit.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Sink)
	}
}

// session is one booted, patched host with its handlers and plugins.
type session struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	trail    *audit.Trail
	registry *bus.Registry
	plugins  *plugin.Manager
	machine  *host.Machine
	world    *game.World
	report   *patch.Report
	image    string
}

// boot wires the audit trail, dispatch bus, host and patches in that order,
// then loads plugins. Patch failures abort before the host runs.
func boot(cfg *config.Config, logger *slog.Logger, seed game.Seed) (*session, error) {
	img, name, err := loadImage(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &session{logger: logger, metrics: metrics.New(), image: name}

	sink, err := openSink(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}
	s.trail = audit.NewTrail(sink, audit.WithLogger(logger), audit.WithMetrics(s.metrics))
	s.trail.SetEnabled(cfg.Audit.Enabled)

	s.registry = bus.New(bus.WithLogger(logger), bus.WithMetrics(s.metrics))
	if err := handlers.Declare(s.registry); err != nil {
		s.Close()
		return nil, err
	}

	s.world = game.NewWorld(seed)
	s.machine = host.NewMachine(img, host.WithLogger(logger), host.WithMetrics(s.metrics))
	game.Bind(s.machine, s.world)

	engine := patch.New(patch.WithLogger(logger), patch.WithMetrics(s.metrics))
	s.report, err = patches.Install(engine, img, s.machine, patches.Env{
		Registry: s.registry,
		Auditor:  s.trail,
		Sizer:    s.world,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("patch host: %w", err)
	}
	logger.Info("host patched", "image", name, "version", img.Version(), "applied", len(s.report.Applied))

	s.plugins = plugin.NewManager(s.registry, plugin.WithLogger(logger), plugin.WithTimeout(cfg.Plugins.Timeout))
	if err := s.plugins.LoadDir(cfg.Plugins.Dir); err != nil {
		// A broken plugin is skipped; the rest keep running.
		logger.Error("some plugins failed to load", "dir", cfg.Plugins.Dir, "error", err)
	}
	logger.Info("plugins loaded", "dir", cfg.Plugins.Dir, "count", len(s.plugins.Plugins()))
	return s, nil
}

// Close unloads plugins, closes the bus and flushes the audit sink.
func (s *session) Close() error {
	if s.plugins != nil {
		s.plugins.Close()
	}
	if s.registry != nil {
		s.registry.Close()
	}
	return s.trail.Close()
}
