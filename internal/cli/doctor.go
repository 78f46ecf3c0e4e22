package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/audit"
	"github.com/ppiankov/hostpatch/internal/bus"
	"github.com/ppiankov/hostpatch/internal/config"
	"github.com/ppiankov/hostpatch/internal/handlers"
	"github.com/ppiankov/hostpatch/internal/patch"
	"github.com/ppiankov/hostpatch/internal/patches"
	"github.com/ppiankov/hostpatch/internal/plugin"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check readiness and diagnose configuration issues",
	Long:  "Loads the config, verifies and dry-run patches the host image, loads every\nplugin against a scratch bus and verifies the audit chain.",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	checks = append(checks, checkResult{
		label:  "hostpatch binary",
		ok:     execPath != "",
		detail: fmt.Sprintf("%s (v%s)", execPath, version),
	})

	// 2. Config.
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		checks = append(checks, checkResult{label: "config", detail: err.Error(), fix: "hostpatch init --force"})
		return printChecks(cmd, checks)
	}
	if _, err := os.Stat(path); err == nil {
		checks = append(checks, checkResult{label: "config", ok: true, detail: path})
	} else {
		checks = append(checks, checkResult{label: "config", ok: true, detail: "defaults (no file)"})
	}
	quiet := slog.New(slog.DiscardHandler)

	// 3. Host image and patch table, applied to a scratch copy.
	img, name, err := loadImage(cfg, quiet)
	if err != nil {
		checks = append(checks, checkResult{label: "host image", detail: err.Error(), fix: "check host.image and host.expected_hash"})
	} else {
		detail := name
		if cfg.Host.ExpectedHash == "" {
			detail += " (not pinned)"
		}
		checks = append(checks, checkResult{label: "host image", ok: true, detail: detail})

		report, err := patch.New(patch.WithLogger(quiet)).Apply(img, patches.Table()...)
		if err != nil {
			checks = append(checks, checkResult{
				label:  "patch table",
				detail: fmt.Sprintf("%d of %d descriptors failed", len(report.Failed), len(report.Failed)+len(report.Applied)),
				fix:    "hostpatch patch",
			})
		} else {
			checks = append(checks, checkResult{label: "patch table", ok: true, detail: fmt.Sprintf("%d descriptors apply", len(report.Applied))})
		}
	}

	// 4. Plugins.
	checks = append(checks, checkPlugins(cfg, quiet))

	// 5. Audit trail.
	checks = append(checks, checkAudit(cmd, cfg.Audit))

	logger.Debug("doctor finished", "checks", len(checks))
	return printChecks(cmd, checks)
}

func checkPlugins(cfg *config.Config, logger *slog.Logger) checkResult {
	files, _ := filepath.Glob(filepath.Join(cfg.Plugins.Dir, "*.lua"))
	if len(files) == 0 {
		return checkResult{label: "plugins", ok: true, detail: "none in " + cfg.Plugins.Dir}
	}
	reg := bus.New(bus.WithLogger(logger))
	if err := handlers.Declare(reg); err != nil {
		return checkResult{label: "plugins", detail: err.Error()}
	}
	m := plugin.NewManager(reg, plugin.WithLogger(logger), plugin.WithTimeout(cfg.Plugins.Timeout))
	defer m.Close()
	if err := m.LoadDir(cfg.Plugins.Dir); err != nil {
		return checkResult{
			label:  "plugins",
			detail: fmt.Sprintf("%d of %d load: %v", len(m.Plugins()), len(files), err),
			fix:    "fix or remove the failing plugin",
		}
	}
	return checkResult{label: "plugins", ok: true, detail: fmt.Sprintf("%d loaded", len(m.Plugins()))}
}

func checkAudit(cmd *cobra.Command, cfg config.AuditConfig) checkResult {
	if !cfg.Enabled {
		return checkResult{label: "audit trail", ok: true, detail: "disabled"}
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return checkResult{label: "audit trail", ok: true, detail: "no log yet at " + cfg.Path}
	}
	var res audit.VerifyResult
	if cfg.Sink == "sqlite" {
		db, err := audit.OpenSQLite(cfg.Path)
		if err != nil {
			return checkResult{label: "audit trail", detail: err.Error()}
		}
		defer db.Close()
		res = db.Verify(cmdContext(cmd))
	} else {
		res = audit.Verify(cfg.Path)
	}
	if !res.Valid {
		return checkResult{
			label:  "audit trail",
			detail: fmt.Sprintf("broken at line %d: %s", res.ErrorLine, res.Error),
			fix:    "hostpatch audit verify",
		}
	}
	return checkResult{label: "audit trail", ok: true, detail: fmt.Sprintf("%d entries verified", res.Lines)}
}

func printChecks(cmd *cobra.Command, checks []checkResult) error {
	out := cmd.OutOrStdout()
	hasFailures := false
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-18s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(out, line)
	}

	if hasFailures {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "All checks passed.")
	return nil
}
