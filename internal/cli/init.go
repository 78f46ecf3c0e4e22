package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap hostpatch configuration",
	Long: `Creates ~/.hostpatch/ with a default config.yaml and an empty plugins directory.

Existing files are kept unless --force is given.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir := config.Dir()
	out := cmd.OutOrStdout()

	var created []string

	pluginsDir := filepath.Join(configDir, "plugins")
	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		return fmt.Errorf("create plugins directory: %w", err)
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if wrote, err := writeIfMissing(path, config.DefaultYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, path)
	}

	fmt.Fprintln(out, "hostpatch init complete.")
	fmt.Fprintln(out)
	if len(created) > 0 {
		fmt.Fprintln(out, "Created:")
		for _, p := range created {
			fmt.Fprintf(out, "  %s\n", p)
		}
	} else {
		fmt.Fprintln(out, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Drop *.lua plugins into %s, then:\n", pluginsDir)
	fmt.Fprintln(out, "  hostpatch run --scenario <file>")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
