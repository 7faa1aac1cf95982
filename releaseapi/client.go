// Package releaseapi is the out-of-scope "release API" collaborator named
// in spec.md §4.6 step 2 and §4.7's ReleaseCheck: given a version and
// channel (architecture), it resolves the build number, ISO URL, and
// expected checksum for that release. Grounded on
// original_source/src/release_api.rs's Release::get_release, translated
// from isahc+serde_json to net/http+encoding/json since no library in the
// retrieval pack offers a JSON HTTP client and the stdlib pair is exactly
// what the Rust original reaches for (an HTTP GET, a typed JSON decode).
package releaseapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultBase is the production release API root.
const DefaultBase = "https://api.pop-os.org/"

// Release is a single resolved build, as reported by the API for a given
// version and channel.
type Release struct {
	Version  string
	URL      string
	Size     int64
	Checksum string // sha256 hex digest
	Channel  string
	Build    int16
	Urgent   bool
}

// rawRelease mirrors the wire shape, where several numeric fields are
// transmitted as strings (spec-original_source's RawRelease).
type rawRelease struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	Size    uint64 `json:"size"`
	SHASum  string `json:"sha_sum"`
	Channel string `json:"channel"`
	Build   string `json:"build"`
	Urgent  string `json:"urgent"`
}

func (r rawRelease) toRelease() (Release, error) {
	build, err := strconv.ParseInt(r.Build, 10, 16)
	if err != nil {
		return Release{}, fmt.Errorf("releaseapi: build %q is not a number", r.Build)
	}
	return Release{
		Version:  r.Version,
		URL:      r.URL,
		Size:     int64(r.Size),
		Checksum: r.SHASum,
		Channel:  r.Channel,
		Build:    int16(build),
		Urgent:   r.Urgent == "true",
	}, nil
}

// Client queries the release API over HTTP.
type Client struct {
	base string
	http *http.Client
}

// New returns a Client against base (DefaultBase if empty), using
// httpClient (http.DefaultClient if nil).
func New(base string, httpClient *http.Client) *Client {
	if base == "" {
		base = DefaultBase
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, http: httpClient}
}

// GetRelease resolves the build published for version on channel (an
// architecture name, "intel" or "nvidia" per sysutil.DetectArch).
func (c *Client) GetRelease(ctx context.Context, version, channel string) (Release, error) {
	endpoint := c.base + "builds/" + url.PathEscape(version) + "/" + url.PathEscape(channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Release{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("releaseapi: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Release{}, fmt.Errorf("releaseapi: %s returned status %d", endpoint, resp.StatusCode)
	}

	var raw rawRelease
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Release{}, fmt.Errorf("releaseapi: decoding response from %s: %w", endpoint, err)
	}
	return raw.toRelease()
}

// BuildExists resolves only the build number published for version on
// channel.
func (c *Client) BuildExists(ctx context.Context, version, channel string) (int16, error) {
	release, err := c.GetRelease(ctx, version, channel)
	if err != nil {
		return 0, err
	}
	return release.Build, nil
}
