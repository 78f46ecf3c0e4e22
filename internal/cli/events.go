package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/handlers"
	"github.com/ppiankov/hostpatch/internal/patches"
)

func init() {
	rootCmd.AddCommand(eventsCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the event kinds plugins can subscribe to",
	Long:  "Prints every event kind with the host method it is raised from and\nwhether handlers can cancel it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		method := make(map[string]string)
		cancellable := make(map[string]bool)
		for _, d := range patches.Table() {
			method[d.Dispatch.Name] = string(d.Method)
			cancellable[d.Dispatch.Name] = d.Cancellable()
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tHOST METHOD\tCANCELLABLE\tENTRY POINT")
		for _, kind := range handlers.Kinds() {
			entry := handlers.EntryPoint(kind)
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", kind, method[entry], cancellable[entry], entry)
		}
		return tw.Flush()
	},
}
