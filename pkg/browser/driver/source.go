package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"strconv"
)

// DefaultChromeForTestingURL is the Chrome for Testing milestone index.
const DefaultChromeForTestingURL = "https://googlechromelabs.github.io/chrome-for-testing/latest-versions-per-milestone-with-downloads.json"

// Release is one downloadable driver build.
type Release struct {
	Version Version
	URL     string
}

// Source resolves the driver release for a browser version.
type Source interface {
	Resolve(ctx context.Context, browserVersion Version) (Release, error)
}

// ChromeForTesting resolves chromedriver builds from the Chrome for Testing
// JSON endpoints.
type ChromeForTesting struct {
	IndexURL string
	Client   *http.Client
	Platform string
}

type cftIndex struct {
	Milestones map[string]struct {
		Milestone string `json:"milestone"`
		Version   string `json:"version"`
		Downloads struct {
			ChromeDriver []struct {
				Platform string `json:"platform"`
				URL      string `json:"url"`
			} `json:"chromedriver"`
		} `json:"downloads"`
	} `json:"milestones"`
}

// Resolve picks the release for the browser's major version or, failing that,
// the nearest lower milestone that ships a chromedriver for this platform.
func (s *ChromeForTesting) Resolve(ctx context.Context, browserVersion Version) (Release, error) {
	platform := s.Platform
	if platform == "" {
		var err error
		if platform, err = chromePlatform(runtime.GOOS, runtime.GOARCH); err != nil {
			return Release{}, err
		}
	}

	index, err := s.fetchIndex(ctx)
	if err != nil {
		return Release{}, err
	}

	var majors []int
	for key := range index.Milestones {
		if n, err := strconv.Atoi(key); err == nil && n <= browserVersion.Major() {
			majors = append(majors, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(majors)))

	for _, major := range majors {
		m := index.Milestones[strconv.Itoa(major)]
		for _, d := range m.Downloads.ChromeDriver {
			if d.Platform != platform {
				continue
			}
			v, err := ParseVersion(m.Version)
			if err != nil {
				continue
			}
			return Release{Version: v, URL: d.URL}, nil
		}
	}
	return Release{}, fmt.Errorf("no chromedriver release for chrome %s on %s", browserVersion, platform)
}

func (s *ChromeForTesting) fetchIndex(ctx context.Context) (*cftIndex, error) {
	url := s.IndexURL
	if url == "" {
		url = DefaultChromeForTestingURL
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch driver index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("driver index returned %s: %s", resp.Status, body)
	}

	var index cftIndex
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("failed to decode driver index: %w", err)
	}
	return &index, nil
}

// chromePlatform maps GOOS/GOARCH to a Chrome for Testing platform name.
func chromePlatform(goos, goarch string) (string, error) {
	switch goos + "/" + goarch {
	case "linux/amd64":
		return "linux64", nil
	case "darwin/arm64":
		return "mac-arm64", nil
	case "darwin/amd64":
		return "mac-x64", nil
	case "windows/386":
		return "win32", nil
	case "windows/amd64", "windows/arm64":
		return "win64", nil
	default:
		return "", fmt.Errorf("no chromedriver builds for %s/%s", goos, goarch)
	}
}
