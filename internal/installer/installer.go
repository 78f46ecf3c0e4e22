// Package installer downloads a framework release and unpacks it into a
// game server: framework files under the app-data directory, the patched
// managed assembly over the host's own.
package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// AssetName is the release asset that carries the framework.
	AssetName = "exiled.tar.gz"
	// TargetFileName is the host assembly replaced by GAME entries.
	TargetFileName = "Assembly-CSharp.dll"
)

// TargetSubfolders lead from the server root to TargetFileName.
var TargetSubfolders = []string{"SCPSL_Data", "Managed"}

// ValidateServerPath returns the managed assembly path under serverPath, or
// an error when it does not exist.
func ValidateServerPath(serverPath string) (string, error) {
	target := filepath.Join(append(append([]string{serverPath}, TargetSubfolders...), TargetFileName)...)
	if _, err := os.Stat(target); err != nil {
		return target, fmt.Errorf("couldn't find %s in %s: %w", TargetFileName, filepath.Dir(target), err)
	}
	return target, nil
}

// DefaultAppData is the user's config directory.
func DefaultAppData() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir
}

// Options selects what to install and where.
type Options struct {
	ServerPath  string
	AppData     string
	Target      string
	Prereleases bool
}

// Installer runs one installation, reporting progress to Out.
type Installer struct {
	Client *Client
	Markup Markup
	Out    io.Writer
	Logger *slog.Logger
}

// Install finds the release, downloads its asset and extracts it.
func (in *Installer) Install(ctx context.Context, opts Options) ([]EntryResult, error) {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	markup := in.Markup
	if markup == nil {
		markup = DefaultMarkup()
	}
	appData := opts.AppData
	if appData == "" {
		appData = DefaultAppData()
	}
	in.printf("AppData folder: %s\n", appData)

	target, err := ValidateServerPath(opts.ServerPath)
	if err != nil {
		return nil, err
	}

	in.printf("Receiving releases...\n")
	in.printf("Prereleases included - %t\n", opts.Prereleases)
	in.printf("Target release version - %s\n", orNull(opts.Target))
	releases, err := in.Client.Releases(ctx)
	if err != nil {
		return nil, err
	}

	release, err := FindRelease(releases, opts.Target, opts.Prereleases)
	if err != nil {
		in.printf("--- RELEASES ---\n")
		for _, r := range releases {
			in.printf("%s\n", FormatRelease(r, false))
		}
		return nil, err
	}
	in.printf("Release found!\n%s\n", FormatRelease(release, false))

	asset, ok := release.Asset(AssetName)
	if !ok {
		in.printf("--- ASSETS ---\n")
		for _, a := range release.Assets {
			in.printf("%s\n", FormatAsset(a))
		}
		return nil, fmt.Errorf("%w: %s in %s", ErrNoAsset, AssetName, release.Tag)
	}
	in.printf("Asset found!\n%s\n", FormatAsset(asset))

	body, err := in.Client.Download(ctx, asset)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	results, err := Extract(body, Layout{AppData: appData, TargetFile: target, Markup: markup}, func(r EntryResult) {
		switch {
		case r.Skipped != "":
			in.printf("Skipping '%s' (%s)\n", r.Name, r.Skipped)
		default:
			in.printf("Extracting '%s' into '%s'...\n", filepath.Base(r.Name), r.Path)
		}
	})
	if err != nil {
		logger.Error("installation incomplete", "release", release.Tag, "error", err)
		return results, err
	}
	in.printf("Installation complete\n")
	logger.Info("installed", "release", release.Tag, "entries", len(results))
	return results, nil
}

func (in *Installer) printf(format string, args ...any) {
	if in.Out != nil {
		fmt.Fprintf(in.Out, format, args...)
	}
}

func orNull(s string) string {
	if s == "" {
		return "(null)"
	}
	return s
}
