package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hostpatch/internal/installer"
)

var (
	installPath        string
	installAppData     string
	installTarget      string
	installPrereleases bool
	installToken       string
	installVersions    bool
	installAPI         string
)

func init() {
	installCmd.Flags().StringVarP(&installPath, "path", "p", ".", "Game server directory")
	installCmd.Flags().StringVar(&installAppData, "appdata", "", "Directory for framework files (default: user config dir)")
	installCmd.Flags().StringVar(&installTarget, "target-version", "", "Release tag to install (default: newest)")
	installCmd.Flags().BoolVar(&installPrereleases, "pre-releases", false, "Consider prereleases when picking the newest release")
	installCmd.Flags().StringVar(&installToken, "github-token", "", "Bearer token for the release API (default install.token)")
	installCmd.Flags().BoolVar(&installVersions, "get-versions", false, "List available releases and exit")
	installCmd.Flags().StringVar(&installAPI, "api", installer.DefaultAPI, "Release API root")
	_ = installCmd.Flags().MarkHidden("api")
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download a framework release and install it into a game server",
	Long: `Lists releases of install.repository, picks the target tag or the newest one,
downloads its exiled.tar.gz asset and unpacks it: framework folders go under
the app-data directory, the patched managed assembly replaces the server's.`,
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "hostpatch-installer %s\n", version)

	token := cfg.Install.Token
	if installToken != "" {
		token = installToken
	}
	opts := []installer.ClientOption{
		installer.WithAPI(installAPI),
		installer.WithClientLogger(logger.Logger),
	}
	if token != "" {
		fmt.Fprintln(out, "Token detected! Using the token...")
		opts = append(opts, installer.WithToken(token))
	}
	client := installer.NewClient(cfg.Install.Repository, "hostpatch-installer/"+version, opts...)

	if installVersions {
		releases, err := client.Releases(cmdContext(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "--- AVAILABLE VERSIONS ---")
		for _, r := range releases {
			fmt.Fprintln(out, installer.FormatRelease(r, true))
		}
		return nil
	}

	in := &installer.Installer{Client: client, Out: out, Logger: logger.Logger}
	_, err = in.Install(cmdContext(cmd), installer.Options{
		ServerPath:  installPath,
		AppData:     installAppData,
		Target:      installTarget,
		Prereleases: installPrereleases,
	})
	return err
}
