package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/patch"
	"github.com/ppiankov/hostpatch/internal/patches"
)

var (
	patchOut    string
	patchImage  string
	patchFormat string
)

func init() {
	patchCmd.Flags().StringVarP(&patchOut, "out", "o", "", "Write the patched image here")
	patchCmd.Flags().StringVar(&patchImage, "image", "", "Host image to patch (default host.image, or the built-in image)")
	patchCmd.Flags().StringVar(&patchFormat, "format", "text", "Report format: text or json")
	rootCmd.AddCommand(patchCmd)
}

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Apply every event patch to a host image and report the result",
	Long: `Verifies the host image against host.expected_hash, applies the patch table
and prints one line per descriptor. With --out the patched image is written
as YAML. Exits 1 when any descriptor fails.`,
	RunE: runPatch,
}

func runPatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if patchImage != "" {
		cfg.Host.Image = patchImage
	}

	img, name, err := loadImage(cfg, logger.Logger)
	if err != nil {
		return err
	}

	engine := patch.New(patch.WithLogger(logger.Logger))
	report, applyErr := engine.Apply(img, patches.Table()...)

	out := cmd.OutOrStdout()
	switch patchFormat {
	case "json":
		data, err := json.MarshalIndent(jsonReport(name, report), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	default:
		fmt.Fprintf(out, "image: %s (version %s)\n", name, img.Version())
		for _, r := range report.Applied {
			fmt.Fprintf(out, "  OK    %-30s %s at %s (%s, +%d)\n", r.Descriptor, r.Method, r.Anchor, r.Mode, r.Inserted)
		}
		for _, f := range report.Failed {
			fmt.Fprintf(out, "  FAIL  %-30s %s: %v\n", f.Descriptor, f.Method, f.Err)
		}
		fmt.Fprintf(out, "%d applied, %d failed\n", len(report.Applied), len(report.Failed))
	}
	if applyErr != nil {
		return applyErr
	}

	if patchOut != "" {
		data, err := img.Marshal()
		if err != nil {
			return fmt.Errorf("marshal patched image: %w", err)
		}
		if err := os.WriteFile(patchOut, data, 0o644); err != nil {
			return fmt.Errorf("write patched image: %w", err)
		}
		logger.Info("patched image written", "path", patchOut)
	}
	return nil
}

type failedPatch struct {
	Descriptor string `json:"descriptor"`
	Method     string `json:"method"`
	Error      string `json:"error"`
}

func jsonReport(image string, r *patch.Report) any {
	failed := make([]failedPatch, 0, len(r.Failed))
	for _, f := range r.Failed {
		failed = append(failed, failedPatch{Descriptor: f.Descriptor, Method: string(f.Method), Error: f.Err.Error()})
	}
	return map[string]any{
		"image":   image,
		"applied": r.Applied,
		"failed":  failed,
	}
}
