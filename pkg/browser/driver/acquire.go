package driver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/singleflight"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
)

// Origin records where a driver binary came from.
type Origin string

const (
	OriginPinned   Origin = "pinned"
	OriginPath     Origin = "path"
	OriginCache    Origin = "cache"
	OriginDownload Origin = "download"
)

// Result is a validated driver binary.
type Result struct {
	Path    string
	Version Version
	Origin  Origin

	// BrowserVersion is the detected browser version, nil if unknown.
	BrowserVersion Version
}

// Acquirer locates or downloads driver binaries. The zero value is not
// usable; create one with NewAcquirer.
type Acquirer struct {
	client  *http.Client
	source  Source
	version VersionFunc
	logger  *logging.Logger
	group   singleflight.Group

	// searchDirs are checked after PATH
	searchDirs []string
	lookPath   func(string) (string, error)
}

// Option customizes an Acquirer.
type Option func(*Acquirer)

// WithHTTPClient sets the client used for the index and downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Acquirer) { a.client = c }
}

// WithSource replaces the Chrome for Testing source.
func WithSource(s Source) Option {
	return func(a *Acquirer) { a.source = s }
}

// WithVersionFunc replaces "--version" execution.
func WithVersionFunc(f VersionFunc) Option {
	return func(a *Acquirer) { a.version = f }
}

// WithSearchDirs replaces the standard install directories.
func WithSearchDirs(dirs ...string) Option {
	return func(a *Acquirer) { a.searchDirs = dirs }
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(f func(string) (string, error)) Option {
	return func(a *Acquirer) { a.lookPath = f }
}

// NewAcquirer creates an acquirer.
func NewAcquirer(logger *logging.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{
		client:     http.DefaultClient,
		version:    RunVersion,
		logger:     logger,
		searchDirs: defaultSearchDirs(),
		lookPath:   exec.LookPath,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.source == nil {
		a.source = &ChromeForTesting{Client: a.client}
	}
	return a
}

// DriverName returns the driver executable name for a browser kind, without
// any platform extension.
func DriverName(kind browser.Kind) string {
	switch kind {
	case browser.KindEdge:
		return "msedgedriver"
	case browser.KindFirefox:
		return "geckodriver"
	case browser.KindSafari:
		return "safaridriver"
	default:
		return "chromedriver"
	}
}

func binaryName(driverName string) string {
	if runtime.GOOS == "windows" {
		return driverName + ".exe"
	}
	return driverName
}

func defaultSearchDirs() []string {
	dirs := []string{"/usr/local/bin", "/usr/bin", "/usr/lib/chromium", "/usr/lib/chromium-browser", "/snap/bin", "/opt/homebrew/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"), filepath.Join(home, "bin"))
	}
	return dirs
}

// Acquire produces a validated, executable driver path.
//
// A pinned path is validated and returned without looking anywhere else and
// without network access. Otherwise local candidates (PATH, standard
// directories, the download cache) are matched against the browser's major
// version, and a matching release is downloaded if none fits and downloads
// are enabled.
func (a *Acquirer) Acquire(ctx context.Context, bspec browser.BrowserSpec, dspec browser.DriverSpec) (Result, error) {
	if dspec.Path != "" {
		if err := checkExecutable(dspec.Path); err != nil {
			return Result{}, browser.NewError(browser.ErrDriverNotFound, "acquire driver", fmt.Errorf("%s: %w", dspec.Path, err))
		}
		a.logger.Infof("Using pinned driver %s", dspec.Path)
		metrics.DriverAcquisitions.WithLabelValues(string(OriginPinned)).Inc()
		return Result{Path: dspec.Path, Origin: OriginPinned}, nil
	}

	key := string(bspec.Kind) + "|" + bspec.BinaryPath + "|" + dspec.CacheDir
	v, err, _ := a.group.Do(key, func() (any, error) {
		return a.acquire(ctx, bspec, dspec)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)
	metrics.DriverAcquisitions.WithLabelValues(string(res.Origin)).Inc()
	return res, nil
}

func (a *Acquirer) acquire(ctx context.Context, bspec browser.BrowserSpec, dspec browser.DriverSpec) (Result, error) {
	name := DriverName(bspec.Kind)
	bin := binaryName(name)
	cache := Cache{Root: dspec.CacheDir}

	candidates := a.localCandidates(ctx, name, bin, cache)

	// Only chromium drivers are versioned in lockstep with the browser.
	if !bspec.Kind.Chromium() {
		if len(candidates) > 0 {
			c := candidates[0]
			return Result{Path: c.Path, Version: c.Version, Origin: c.Origin}, nil
		}
		return Result{}, browser.Errorf(browser.ErrDriverUnavailable, "acquire driver", "%s not found and no download source exists for %s", name, bspec.Kind)
	}

	browserVersion := a.browserVersion(ctx, bspec)

	if browserVersion != nil {
		best, match := selectCandidate(browserVersion, candidates)
		switch match {
		case matchExact:
			a.logger.Infof("Using %s %s from %s (browser %s)", name, best.Version, best.Path, browserVersion)
			return Result{Path: best.Path, Version: best.Version, Origin: best.Origin, BrowserVersion: browserVersion}, nil
		case matchLower:
			if !dspec.AutoDownload {
				a.logger.Warnf("Using older %s %s for browser %s", name, best.Version, browserVersion)
				return Result{Path: best.Path, Version: best.Version, Origin: best.Origin, BrowserVersion: browserVersion}, nil
			}
		}
	} else if len(candidates) > 0 {
		c := candidates[0]
		a.logger.Warnf("Browser version unknown, using %s %s from %s without version check", name, c.Version, c.Path)
		return Result{Path: c.Path, Version: c.Version, Origin: c.Origin}, nil
	}

	if !dspec.AutoDownload {
		return Result{}, browser.Errorf(browser.ErrDriverUnavailable, "acquire driver", "no %s compatible with browser %s found and auto-download is disabled", name, browserVersion)
	}
	if browserVersion == nil {
		return Result{}, browser.Errorf(browser.ErrDriverUnavailable, "acquire driver", "cannot download %s: browser version could not be detected", name)
	}
	if bspec.Kind != browser.KindChrome {
		// A lower local candidate is still better than nothing.
		if best, match := selectCandidate(browserVersion, candidates); match == matchLower {
			a.logger.Warnf("Using older %s %s for browser %s", name, best.Version, browserVersion)
			return Result{Path: best.Path, Version: best.Version, Origin: best.Origin, BrowserVersion: browserVersion}, nil
		}
		return Result{}, browser.Errorf(browser.ErrDriverUnavailable, "acquire driver", "no download source for %s", name)
	}

	res, err := a.download(ctx, name, bin, cache, browserVersion)
	if err != nil {
		if best, match := selectCandidate(browserVersion, candidates); match == matchLower {
			a.logger.Warnf("Driver download failed (%v), using older %s %s", err, name, best.Version)
			return Result{Path: best.Path, Version: best.Version, Origin: best.Origin, BrowserVersion: browserVersion}, nil
		}
		return Result{}, browser.NewError(browser.ErrDriverUnavailable, "acquire driver", err)
	}
	return res, nil
}

// Download fetches the driver release matching the installed browser into the
// cache regardless of what is installed locally.
func (a *Acquirer) Download(ctx context.Context, bspec browser.BrowserSpec, dspec browser.DriverSpec) (Result, error) {
	if bspec.Kind != browser.KindChrome {
		return Result{}, browser.Errorf(browser.ErrDriverUnavailable, "download driver", "no download source for %s", DriverName(bspec.Kind))
	}
	browserVersion := a.browserVersion(ctx, bspec)
	if browserVersion == nil {
		return Result{}, browser.Errorf(browser.ErrDriverUnavailable, "download driver", "browser version could not be detected")
	}
	name := DriverName(bspec.Kind)
	res, err := a.download(ctx, name, binaryName(name), Cache{Root: dspec.CacheDir}, browserVersion)
	if err != nil {
		return Result{}, browser.NewError(browser.ErrDriverUnavailable, "download driver", err)
	}
	return res, nil
}

func (a *Acquirer) download(ctx context.Context, name, bin string, cache Cache, browserVersion Version) (Result, error) {
	release, err := a.source.Resolve(ctx, browserVersion)
	if err != nil {
		return Result{}, err
	}
	if release.Version.Major() != browserVersion.Major() {
		a.logger.Warnf("No %s for browser major %d, using nearest lower release %s", name, browserVersion.Major(), release.Version)
	}

	path, err := cache.Install(name, bin, release.Version, func(dir string) error {
		archive := filepath.Join(dir, ".archive.zip")
		a.logger.Infof("Downloading %s %s from %s", name, release.Version, release.URL)
		if err := fetch(ctx, a.client, release.URL, archive); err != nil {
			return err
		}
		defer os.Remove(archive)
		return extractBinary(archive, bin, dir)
	})
	if err != nil {
		return Result{}, err
	}
	a.logger.Infof("Installed %s %s at %s", name, release.Version, path)
	return Result{Path: path, Version: release.Version, Origin: OriginDownload, BrowserVersion: browserVersion}, nil
}

// browserVersion detects the installed browser version, nil if unknown.
func (a *Acquirer) browserVersion(ctx context.Context, bspec browser.BrowserSpec) Version {
	binary, err := FindBrowser(bspec)
	if err != nil {
		a.logger.Warnf("Browser detection failed: %v", err)
		return nil
	}
	out, err := a.version(ctx, binary)
	if err != nil {
		a.logger.Warnf("Browser version detection failed: %v", err)
		return nil
	}
	v, err := ParseVersion(out)
	if err != nil {
		a.logger.Warnf("Browser version detection failed: %v", err)
		return nil
	}
	return v
}

// localCandidates collects drivers from PATH, the search directories and the
// cache, in that order, skipping duplicates and binaries that fail to report
// a version.
func (a *Acquirer) localCandidates(ctx context.Context, name, bin string, cache Cache) []Candidate {
	seen := map[string]bool{}
	var out []Candidate

	add := func(path string, origin Origin) {
		if path == "" || seen[path] || checkExecutable(path) != nil {
			return
		}
		seen[path] = true
		raw, err := a.version(ctx, path)
		if err != nil {
			a.logger.Debugf("Skipping %s: %v", path, err)
			return
		}
		v, err := ParseVersion(raw)
		if err != nil {
			a.logger.Debugf("Skipping %s: %v", path, err)
			return
		}
		out = append(out, Candidate{Path: path, Version: v, Origin: origin})
	}

	if path, err := a.lookPath(bin); err == nil {
		add(path, OriginPath)
	}
	for _, dir := range a.searchDirs {
		add(filepath.Join(dir, bin), OriginPath)
	}
	for _, c := range cache.Candidates(name, bin) {
		if !seen[c.Path] {
			seen[c.Path] = true
			out = append(out, c)
		}
	}
	return out
}
