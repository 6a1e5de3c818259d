// Package images downloads the images referenced by a post into the blog
// repository.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/schaermu/notion2blog/internal/post"
)

// maxImageSize bounds a single download.
const maxImageSize = 64 << 20

// StatusError reports a download answered with an error status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download of %s failed with status %d", e.URL, e.StatusCode)
}

// FormatError reports a download whose body is not a decodable raster image.
type FormatError struct {
	URL string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("download of %s is not a recognized image: %v", e.URL, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Downloader fetches images one at a time.
type Downloader struct {
	http   *http.Client
	logger *slog.Logger
}

// NewDownloader creates a Downloader. A nil httpClient gets a client with a
// one minute timeout.
func NewDownloader(httpClient *http.Client, logger *slog.Logger) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}
	return &Downloader{http: httpClient, logger: logger}
}

// DownloadAll stores every reference under dir/<file name>, in order. The
// first failure aborts the remaining downloads.
func (d *Downloader) DownloadAll(ctx context.Context, dir string, refs []post.ImageReference) error {
	if len(refs) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	for _, ref := range refs {
		if err := d.Download(ctx, ref.URL, filepath.Join(dir, ref.FileName)); err != nil {
			return err
		}
	}
	return nil
}

// Download fetches url into dest, replacing any existing file. Bodies that
// do not decode as gif, jpeg, png, bmp, tiff or webp are rejected with a
// FormatError and dest is left untouched. Destinations ending in .svg are
// stored as-is.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > maxImageSize {
		return fmt.Errorf("image %s exceeds %d bytes", url, maxImageSize)
	}

	format := "svg"
	if !strings.EqualFold(filepath.Ext(dest), ".svg") {
		_, format, err = image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			d.logger.Warn("downloaded file is not a recognized image", "url", url, "path", dest, "error", err)
			return &FormatError{URL: url, Err: err}
		}
	}

	if err := writeFileAtomic(dest, data); err != nil {
		return err
	}
	d.logger.Debug("downloaded image", "path", dest, "format", format, "bytes", len(data))
	return nil
}

// writeFileAtomic writes data to a temp file in the destination directory and
// renames it into place.
func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename into %s: %w", dest, err)
	}
	return nil
}
