package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
)

// versionTimeout bounds every "--version" probe.
const versionTimeout = 10 * time.Second

// VersionFunc returns the raw "--version" output of a binary.
type VersionFunc func(ctx context.Context, binary string) (string, error)

// RunVersion executes "<binary> --version".
func RunVersion(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", binary, err)
	}
	return string(out), nil
}

var browserExecutables = map[browser.Kind][]string{
	browser.KindChrome:  {"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"},
	browser.KindEdge:    {"microsoft-edge", "microsoft-edge-stable", "msedge"},
	browser.KindFirefox: {"firefox"},
	browser.KindSafari:  {},
}

func browserInstallPaths(kind browser.Kind) []string {
	switch runtime.GOOS {
	case "darwin":
		switch kind {
		case browser.KindChrome:
			return []string{
				"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
				"/Applications/Chromium.app/Contents/MacOS/Chromium",
			}
		case browser.KindEdge:
			return []string{"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"}
		case browser.KindFirefox:
			return []string{"/Applications/Firefox.app/Contents/MacOS/firefox"}
		case browser.KindSafari:
			return []string{"/Applications/Safari.app/Contents/MacOS/Safari"}
		}
	case "windows":
		var paths []string
		for _, root := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)"), os.Getenv("LOCALAPPDATA")} {
			if root == "" {
				continue
			}
			switch kind {
			case browser.KindChrome:
				paths = append(paths, filepath.Join(root, "Google", "Chrome", "Application", "chrome.exe"))
			case browser.KindEdge:
				paths = append(paths, filepath.Join(root, "Microsoft", "Edge", "Application", "msedge.exe"))
			case browser.KindFirefox:
				paths = append(paths, filepath.Join(root, "Mozilla Firefox", "firefox.exe"))
			}
		}
		return paths
	default:
		switch kind {
		case browser.KindChrome:
			return []string{"/opt/google/chrome/chrome", "/usr/lib/chromium/chromium", "/snap/bin/chromium"}
		case browser.KindEdge:
			return []string{"/opt/microsoft/msedge/msedge"}
		case browser.KindFirefox:
			return []string{"/usr/lib/firefox/firefox"}
		}
	}
	return nil
}

// FindBrowser returns the browser binary: the explicit path if given,
// otherwise the first executable on PATH or in a standard install location.
func FindBrowser(spec browser.BrowserSpec) (string, error) {
	if spec.BinaryPath != "" {
		if err := checkExecutable(spec.BinaryPath); err != nil {
			return "", fmt.Errorf("browser binary %s: %w", spec.BinaryPath, err)
		}
		return spec.BinaryPath, nil
	}
	for _, name := range browserExecutables[spec.Kind] {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, path := range browserInstallPaths(spec.Kind) {
		if checkExecutable(path) == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s installation found; set MCP_BROWSER_PATH", spec.Kind)
}

// checkExecutable verifies path is a regular, non-empty file that can be executed.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("file is not executable")
	}
	if runtime.GOOS == "windows" && !strings.EqualFold(filepath.Ext(path), ".exe") {
		return fmt.Errorf("file is not an .exe")
	}
	return nil
}
