package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cache stores downloaded drivers as <root>/<driver>/<version>/<binary>.
//
// A version directory only appears through an atomic rename of a fully
// populated temporary directory. Temporary directories start with a dot and
// are never reported, so a download in progress in another process is
// invisible until it completes.
type Cache struct {
	Root string
}

const partialPrefix = ".partial-"

// Candidates lists the complete cached builds of a driver.
func (c Cache) Candidates(driverName, binaryName string) []Candidate {
	entries, err := os.ReadDir(filepath.Join(c.Root, driverName))
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		v, err := ParseVersion(e.Name())
		if err != nil {
			continue
		}
		path := filepath.Join(c.Root, driverName, e.Name(), binaryName)
		if checkExecutable(path) != nil {
			continue
		}
		out = append(out, Candidate{Path: path, Version: v, Origin: OriginCache})
	}
	return out
}

// Path returns where a version's binary lives once installed.
func (c Cache) Path(driverName, binaryName string, v Version) string {
	return filepath.Join(c.Root, driverName, v.String(), binaryName)
}

// Install populates a temporary directory and atomically moves it into place.
// If another process installed the same version first, its copy is used and
// ours is discarded.
func (c Cache) Install(driverName, binaryName string, v Version, populate func(dir string) error) (string, error) {
	root := filepath.Join(c.Root, driverName)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create driver cache: %w", err)
	}

	final := c.Path(driverName, binaryName, v)
	if checkExecutable(final) == nil {
		return final, nil
	}

	tmp, err := os.MkdirTemp(root, partialPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := populate(tmp); err != nil {
		return "", err
	}
	if err := checkExecutable(filepath.Join(tmp, binaryName)); err != nil {
		return "", fmt.Errorf("downloaded driver failed verification: %w", err)
	}

	if err := os.Rename(tmp, filepath.Dir(final)); err != nil {
		if checkExecutable(final) == nil {
			return final, nil
		}
		return "", fmt.Errorf("failed to install driver into cache: %w", err)
	}
	return final, nil
}
