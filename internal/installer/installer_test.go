package installer

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "EXILED/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func serverDir(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	managed := filepath.Join(root, "SCPSL_Data", "Managed")
	require.NoError(t, os.MkdirAll(managed, 0o755))
	target := filepath.Join(managed, TargetFileName)
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644))
	return root, target
}

func TestMarkupResolve(t *testing.T) {
	m := DefaultMarkup()
	cases := map[string]Resolution{
		"EXILED/Plugins/a.dll":      Absolute,
		"exiled/Configs/x.yml":      Absolute,
		"Assembly-CSharp.dll":       Game,
		"assembly-csharp.DLL":       Game,
		"Other/Assembly-CSharp.dll": Undefined,
		"EXILED":                    Undefined,
		"readme.txt":                Undefined,
	}
	for name, want := range cases {
		assert.Equal(t, want, m.Resolve(name), name)
	}
}

func TestParseMarkup(t *testing.T) {
	m, err := ParseMarkup([]byte("Data/: absolute\nlauncher.exe: game\nnotes.txt: whatever\n"))
	require.NoError(t, err)
	assert.Equal(t, Absolute, m.Resolve("Data/x"))
	assert.Equal(t, Game, m.Resolve("LAUNCHER.exe"))
	require.Contains(t, m, "notes.txt")
	assert.Equal(t, Undefined, m["notes.txt"])
	assert.Equal(t, Undefined, m.Resolve("notes.txt"))
	assert.Equal(t, "GAME", Game.String())
}

func TestValidateServerPath(t *testing.T) {
	root, target := serverDir(t)
	got, err := ValidateServerPath(root)
	require.NoError(t, err)
	assert.Equal(t, target, got)

	_, err = ValidateServerPath(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "couldn't find Assembly-CSharp.dll")
}

const releasesJSON = `[
  {"id": 3, "tag_name": "2.1.0-beta", "prerelease": true, "created_at": "2024-03-01T00:00:00Z",
   "assets": [{"id": 30, "name": "exiled.tar.gz", "size": 2048, "url": "u3", "browser_download_url": "%[1]s/dl/3"}]},
  {"id": 2, "tag_name": "2.0.5", "prerelease": false, "created_at": "2024-02-01T00:00:00Z",
   "assets": [{"id": 20, "name": "Exiled.tar.gz", "size": 1024, "url": "u2", "browser_download_url": "%[1]s/dl/2"}]},
  {"id": 4, "tag_name": "2.0.1", "prerelease": false, "created_at": "2024-01-01T00:00:00Z",
   "assets": [{"id": 40, "name": "other.zip", "size": 1, "url": "u4", "browser_download_url": "%[1]s/dl/4"}]},
  {"id": 1, "tag_name": "1.9.9", "prerelease": false, "created_at": "2023-12-01T00:00:00Z", "assets": []},
  {"id": 5, "tag_name": "nightly", "prerelease": true, "created_at": "2025-01-01T00:00:00Z", "assets": []}
]`

func TestParseReleases(t *testing.T) {
	rs, err := ParseReleases([]byte(fmt.Sprintf(releasesJSON, "http://x")))
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, []string{"2.1.0-beta", "2.0.5", "2.0.1"}, []string{rs[0].Tag, rs[1].Tag, rs[2].Tag})
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rs[0].CreatedAt.UTC())

	_, err = ParseReleases([]byte(`{"message": "API rate limit exceeded"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")

	_, err = ParseReleases([]byte(`not json`))
	require.Error(t, err)
}

func TestSupportedComparesNumericVersion(t *testing.T) {
	cases := map[string]bool{
		"2.0.0":         true,
		"v2.0.0-beta.1": true,
		"2.0.0-rc1+b7":  true,
		"2.3":           true,
		"1.9.9":         false,
		"1.9.9-alpha":   false,
		"nightly":       false,
		"":              false,
	}
	for tag, want := range cases {
		assert.Equal(t, want, supported(tag), tag)
	}
}

func TestFindRelease(t *testing.T) {
	rs, err := ParseReleases([]byte(fmt.Sprintf(releasesJSON, "http://x")))
	require.NoError(t, err)

	r, err := FindRelease(rs, "", false)
	require.NoError(t, err)
	assert.Equal(t, "2.0.5", r.Tag)

	r, err = FindRelease(rs, "", true)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0-beta", r.Tag)

	r, err = FindRelease(rs, "2.0.1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.ID)

	_, err = FindRelease(rs, "9.9.9", true)
	require.ErrorIs(t, err, ErrNoRelease)

	_, err = FindRelease(rs[:1], "", false)
	require.ErrorIs(t, err, ErrNoRelease)
}

func TestFormat(t *testing.T) {
	r := Release{ID: 7, Tag: "2.0.0", Assets: []Asset{{ID: 1, Name: "exiled.tar.gz", Size: 1500, URL: "u", DownloadURL: "d"}}}
	assert.Equal(t, "PRE: false | ID: 7 | TAG: 2.0.0", FormatRelease(r, false))
	out := FormatRelease(r, true)
	assert.Equal(t, "PRE: false | ID: 7 | TAG: 2.0.0\n   - ID: 1 | NAME: exiled.tar.gz | SIZE: 1.5 kB | URL: u | DownloadURL: d", out)
	a, ok := r.Asset("EXILED.TAR.GZ")
	assert.True(t, ok)
	assert.Equal(t, int64(1), a.ID)
}

func TestExtract(t *testing.T) {
	_, target := serverDir(t)
	appData := t.TempDir()
	data := buildArchive(t, map[string]string{
		"EXILED/Plugins/core.dll":           "core",
		"EXILED/Plugins/example_plugin.dll": "nope",
		"Assembly-CSharp.dll":               "patched",
		"readme.txt":                        "hi",
	})

	var seen []string
	results, err := Extract(bytes.NewReader(data), Layout{AppData: appData, TargetFile: target, Markup: DefaultMarkup()},
		func(r EntryResult) { seen = append(seen, r.Name) })
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Len(t, seen, 4)

	got, err := os.ReadFile(filepath.Join(appData, "EXILED", "Plugins", "core.dll"))
	require.NoError(t, err)
	assert.Equal(t, "core", string(got))

	got, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "patched", string(got))

	_, err = os.Stat(filepath.Join(appData, "EXILED", "Plugins", "example_plugin.dll"))
	assert.True(t, os.IsNotExist(err))

	skipped := map[string]string{}
	for _, r := range results {
		if r.Skipped != "" {
			skipped[r.Name] = r.Skipped
		}
	}
	assert.Equal(t, map[string]string{
		"EXILED/Plugins/example_plugin.dll": "example",
		"readme.txt":                        "unresolved",
	}, skipped)
}

func TestExtractRejectsTraversal(t *testing.T) {
	_, target := serverDir(t)
	data := buildArchive(t, map[string]string{"EXILED/../../evil.dll": "x"})
	_, err := Extract(bytes.NewReader(data), Layout{AppData: t.TempDir(), TargetFile: target, Markup: DefaultMarkup()}, nil)
	require.ErrorIs(t, err, ErrUnsafePath)
}

func TestExtractCorruptArchive(t *testing.T) {
	_, err := Extract(strings.NewReader("not gzip"), Layout{Markup: DefaultMarkup()}, nil)
	require.Error(t, err)
}

func newReleaseServer(t *testing.T, archive []byte, flaky int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var failures atomic.Int32
	failures.Store(flaky)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/owner/repo/releases":
			if failures.Add(-1) >= 0 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprintf(w, releasesJSON, srv.URL)
		case r.URL.Path == "/dl/2":
			w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &failures
}

func TestClientRetriesServerErrors(t *testing.T) {
	srv, _ := newReleaseServer(t, nil, 2)
	c := NewClient("owner/repo", "hostpatch-test", WithAPI(srv.URL), WithToken("secret"))
	rs, err := c.Releases(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs, 3)
}

func TestClientGivesUpOnClientErrors(t *testing.T) {
	srv, _ := newReleaseServer(t, nil, 0)
	c := NewClient("owner/repo", "hostpatch-test", WithAPI(srv.URL))
	_, err := c.Releases(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestInstall(t *testing.T) {
	root, target := serverDir(t)
	appData := t.TempDir()
	archive := buildArchive(t, map[string]string{
		"EXILED/Exiled.Loader.dll": "loader",
		"Assembly-CSharp.dll":      "patched",
	})
	srv, _ := newReleaseServer(t, archive, 0)

	var out bytes.Buffer
	in := &Installer{
		Client: NewClient("owner/repo", "hostpatch-test", WithAPI(srv.URL), WithToken("secret")),
		Out:    &out,
	}
	results, err := in.Install(context.Background(), Options{ServerPath: root, AppData: appData})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "patched", string(got))
	got, err = os.ReadFile(filepath.Join(appData, "EXILED", "Exiled.Loader.dll"))
	require.NoError(t, err)
	assert.Equal(t, "loader", string(got))

	assert.Contains(t, out.String(), "Target release version - (null)")
	assert.Contains(t, out.String(), "Release found!\nPRE: false | ID: 2 | TAG: 2.0.5")
	assert.Contains(t, out.String(), "Installation complete")
}

func TestInstallMissingAsset(t *testing.T) {
	root, _ := serverDir(t)
	srv, _ := newReleaseServer(t, nil, 0)
	var out bytes.Buffer
	in := &Installer{
		Client: NewClient("owner/repo", "hostpatch-test", WithAPI(srv.URL), WithToken("secret")),
		Out:    &out,
	}
	_, err := in.Install(context.Background(), Options{ServerPath: root, AppData: t.TempDir(), Target: "2.0.1"})
	require.True(t, errors.Is(err, ErrNoAsset))
	assert.Contains(t, out.String(), "--- ASSETS ---")
	assert.Contains(t, out.String(), "NAME: other.zip")
}

func TestInstallBadServerPath(t *testing.T) {
	in := &Installer{Client: NewClient("owner/repo", "hostpatch-test", WithAPI("http://127.0.0.1:1"))}
	_, err := in.Install(context.Background(), Options{ServerPath: t.TempDir(), AppData: t.TempDir()})
	require.Error(t, err)
}
