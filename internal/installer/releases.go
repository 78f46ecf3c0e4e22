package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

const (
	// DefaultAPI is the GitHub REST endpoint.
	DefaultAPI = "https://api.github.com"
	// MinVersion is the oldest release the installer understands.
	MinVersion = "v2.0.0"
	// DownloadTimeout bounds one asset download.
	DownloadTimeout = 480 * time.Second
)

var (
	ErrNoRelease = errors.New("installer: no matching release")
	ErrNoAsset   = errors.New("installer: release has no matching asset")
)

// Release is one published version of the distribution.
type Release struct {
	ID         int64
	Tag        string
	Prerelease bool
	CreatedAt  time.Time
	Assets     []Asset
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	ID          int64
	Name        string
	Size        int64
	URL         string
	DownloadURL string
}

// Asset finds an asset by name, ignoring case.
func (r Release) Asset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Asset{}, false
}

// FormatRelease renders a release line, optionally followed by its assets.
func FormatRelease(r Release, withAssets bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PRE: %t | ID: %d | TAG: %s", r.Prerelease, r.ID, r.Tag)
	if withAssets {
		for _, a := range r.Assets {
			b.WriteString("\n   - ")
			b.WriteString(FormatAsset(a))
		}
	}
	return b.String()
}

// FormatAsset renders an asset line.
func FormatAsset(a Asset) string {
	return fmt.Sprintf("ID: %d | NAME: %s | SIZE: %s | URL: %s | DownloadURL: %s",
		a.ID, a.Name, humanize.Bytes(uint64(max(a.Size, 0))), a.URL, a.DownloadURL)
}

// FindRelease picks the release to install from releases, newest first. A
// target tag must match exactly (ignoring case); otherwise the newest release
// is used, skipping prereleases unless allowed.
func FindRelease(releases []Release, target string, prereleases bool) (Release, error) {
	for _, r := range releases {
		if target != "" {
			if strings.EqualFold(r.Tag, target) {
				return r, nil
			}
			continue
		}
		if !r.Prerelease || prereleases {
			return r, nil
		}
	}
	if target != "" {
		return Release{}, fmt.Errorf("%w: tag %s", ErrNoRelease, target)
	}
	return Release{}, ErrNoRelease
}

// Client talks to the release API.
type Client struct {
	api       string
	repo      string
	token     string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
	maxTries  uint
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPI points the client at another API root, e.g. a test server.
func WithAPI(url string) ClientOption {
	return func(c *Client) { c.api = strings.TrimRight(url, "/") }
}

// WithToken authenticates requests with a bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithMaxTries bounds attempts per request.
func WithMaxTries(n uint) ClientOption {
	return func(c *Client) { c.maxTries = n }
}

// NewClient creates a client for repo ("owner/name").
func NewClient(repo, userAgent string, opts ...ClientOption) *Client {
	c := &Client{
		api:       DefaultAPI,
		repo:      repo,
		userAgent: userAgent,
		http:      &http.Client{Timeout: DownloadTimeout},
		logger:    slog.Default(),
		maxTries:  4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Releases lists releases at or above MinVersion, newest first.
func (c *Client) Releases(ctx context.Context) ([]Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases?per_page=100", c.api, c.repo)
	body, err := c.fetch(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return ParseReleases(data)
}

// ParseReleases decodes a release list, dropping tags that are not semantic
// versions at or above MinVersion.
func ParseReleases(data []byte) ([]Release, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("parse releases: invalid JSON")
	}
	list := gjson.ParseBytes(data)
	if !list.IsArray() {
		return nil, fmt.Errorf("parse releases: %s", list.Get("message").String())
	}

	var out []Release
	list.ForEach(func(_, v gjson.Result) bool {
		tag := v.Get("tag_name").String()
		if !supported(tag) {
			return true
		}
		r := Release{
			ID:         v.Get("id").Int(),
			Tag:        tag,
			Prerelease: v.Get("prerelease").Bool(),
			CreatedAt:  v.Get("created_at").Time(),
		}
		v.Get("assets").ForEach(func(_, a gjson.Result) bool {
			r.Assets = append(r.Assets, Asset{
				ID:          a.Get("id").Int(),
				Name:        a.Get("name").String(),
				Size:        a.Get("size").Int(),
				URL:         a.Get("url").String(),
				DownloadURL: a.Get("browser_download_url").String(),
			})
			return true
		})
		out = append(out, r)
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// supported compares the numeric part only: 2.0.0-beta.1 clears a 2.0.0 floor.
func supported(tag string) bool {
	v := tag
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return false
	}
	core := strings.TrimSuffix(semver.Canonical(v), semver.Prerelease(v))
	return semver.Compare(core, MinVersion) >= 0
}

// Download opens the asset's content. The caller closes it.
func (c *Client) Download(ctx context.Context, a Asset) (io.ReadCloser, error) {
	body, err := c.fetch(ctx, a.DownloadURL, "application/octet-stream")
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", a.Name, err)
	}
	return body, nil
}

// fetch GETs url, retrying transport errors and 5xx/429 responses with
// exponential backoff.
func (c *Client) fetch(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	op := func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", c.userAgent)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("request failed, retrying", "url", url, "error", err)
			return nil, err
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}
		resp.Body.Close()
		err = fmt.Errorf("GET %s: %s", url, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("request failed, retrying", "url", url, "status", resp.StatusCode)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
	)
}
