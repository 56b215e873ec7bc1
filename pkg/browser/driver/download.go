package driver

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	downloadAttempts = 3

	// maxDriverSize guards against a corrupt archive expanding without bound.
	maxDriverSize = 256 << 20
)

// fetch downloads url into dst, retrying transient failures.
func fetch(ctx context.Context, client *http.Client, url, dst string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, fetchOnce(ctx, client, url, dst)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(downloadAttempts))
	return err
}

func fetchOnce(ctx context.Context, client *http.Client, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return fmt.Errorf("download %s: %s", url, resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("download %s: %s", url, resp.Status))
	}

	out, err := os.Create(dst)
	if err != nil {
		return backoff.Permanent(err)
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("download %s: %w", url, copyErr)
	}
	if closeErr != nil {
		return backoff.Permanent(closeErr)
	}
	if n == 0 {
		return fmt.Errorf("download %s: empty response", url)
	}
	return nil
}

// extractBinary copies the archive entry named binaryName (at any depth)
// to dir/binaryName with executable permissions.
func extractBinary(archive, binaryName, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open driver archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != binaryName {
			continue
		}
		if f.UncompressedSize64 == 0 {
			return errors.New("driver archive entry is empty")
		}
		if f.UncompressedSize64 > maxDriverSize {
			return fmt.Errorf("driver archive entry too large: %d bytes", f.UncompressedSize64)
		}

		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to read driver archive: %w", err)
		}
		defer src.Close()

		dst, err := os.OpenFile(filepath.Join(dir, binaryName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, io.LimitReader(src, maxDriverSize)); err != nil {
			dst.Close()
			return fmt.Errorf("failed to extract driver: %w", err)
		}
		return dst.Close()
	}
	return fmt.Errorf("driver archive does not contain %s", binaryName)
}
