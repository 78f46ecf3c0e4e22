package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/hostpatch/internal/config"
	"github.com/ppiankov/hostpatch/internal/handlers"
	"github.com/ppiankov/hostpatch/internal/host/game"
	"github.com/ppiankov/hostpatch/internal/logging"
)

var (
	runScenario    string
	runImage       string
	runMetricsAddr string
	runServe       bool
)

func init() {
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "Scenario YAML: world seed plus host calls")
	runCmd.Flags().StringVar(&runImage, "image", "", "Host image (default host.image, or the built-in image)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address (with --serve)")
	runCmd.Flags().BoolVar(&runServe, "serve", false, "Keep running after the scenario until interrupted; watches the config file")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the host, patch it, load plugins and run a scenario",
	Long: `Boots the host image, applies every event patch, loads the Lua plugins from
plugins.dir and executes the scenario's calls against the patched host.
Prints the call results and the final world state as JSON.

With --serve the process stays up: metrics are served on --metrics-addr and
changes to audit.enabled and log.level in the config file apply live.`,
	RunE: runRun,
}

// runOutput is what run prints.
type runOutput struct {
	Scenario   string            `json:"scenario,omitempty"`
	Image      string            `json:"image"`
	Plugins    []string          `json:"plugins"`
	Results    []game.CallResult `json:"results"`
	World      game.State        `json:"world"`
	AuditLines int               `json:"audit_lines"`
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runImage != "" {
		cfg.Host.Image = runImage
	}
	if runMetricsAddr != "" {
		cfg.Metrics.Addr = runMetricsAddr
	}

	scenario := &game.Scenario{}
	if runScenario != "" {
		scenario, err = game.LoadScenario(runScenario)
		if err != nil {
			return err
		}
	}

	s, err := boot(cfg, logger.Logger, scenario.World)
	if err != nil {
		return err
	}
	defer s.Close()

	if !runServe {
		return s.play(cmd.OutOrStdout(), scenario)
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.serve(ctx, cmd.OutOrStdout(), cfg, logger, scenario)
}

// play runs the scenario and prints the outcome.
func (s *session) play(w io.Writer, scenario *game.Scenario) error {
	results := scenario.Run(s.machine, s.world)
	for _, r := range results {
		if r.Error != "" {
			s.logger.Warn("host call failed", "method", r.Method, "error", r.Error)
		}
	}
	s.trail.Flush()

	out := runOutput{
		Scenario:   scenario.Name,
		Image:      s.image,
		Plugins:    s.plugins.Plugins(),
		Results:    results,
		World:      s.world.Snapshot(),
		AuditLines: s.trail.Written(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// serve plays the scenario, then keeps the metrics endpoint and config
// watcher running until ctx is done.
func (s *session) serve(ctx context.Context, w io.Writer, cfg *config.Config, logger *logging.Logger, scenario *game.Scenario) error {
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           s.router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	watcher, err := config.NewWatcher(path, logger.Logger, func(c *config.Config) {
		s.trail.SetEnabled(c.Audit.Enabled)
		if logLevel == "" {
			if err := logger.SetLevel(c.Log.Level); err != nil {
				logger.Warn("log level not applied", "error", err)
			}
		}
	})
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error { return s.play(w, scenario) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})
	return g.Wait()
}

// router serves metrics and a small status surface.
func (s *session) router() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":  "ok",
			"image":   s.image,
			"patches": len(s.report.Applied),
			"plugins": s.plugins.Plugins(),
			"audit":   s.trail.Enabled(),
		})
	})
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		counts := make(map[string]int)
		for _, kind := range handlers.Kinds() {
			counts[kind] = len(s.registry.Handlers(kind))
		}
		writeJSON(w, counts)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
