package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/integrity"
)

const version = "0.4.0"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := map[string]string{
			"version": version,
			"name":    "hostpatch",
		}
		if sum, err := integrity.HashSelf(); err == nil {
			info["sha256"] = sum
		}
		out, _ := json.MarshalIndent(info, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	},
}
