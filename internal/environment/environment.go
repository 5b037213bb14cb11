// Package environment resets on-disk OCR model state before the engine loads.
package environment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Preparer clears the OCR model cache and optionally refetches language data.
type Preparer struct {
	CacheDir    string
	Language    string
	TessdataURL string
	HTTPClient  *http.Client
}

func NewPreparer(cacheDir, language, tessdataURL string) *Preparer {
	return &Preparer{
		CacheDir:    cacheDir,
		Language:    language,
		TessdataURL: tessdataURL,
		HTTPClient:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Prepare wipes CacheDir, recreates it and downloads <lang>.traineddata when a
// TessdataURL is set. Running it twice leaves the same state as running it once.
func (p *Preparer) Prepare(ctx context.Context) error {
	if p.CacheDir == "" {
		return nil
	}

	if err := p.clear(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.CacheDir, 0755); err != nil {
		return fmt.Errorf("creating OCR cache dir %s: %w", p.CacheDir, err)
	}

	if p.TessdataURL == "" {
		return nil
	}
	return p.download(ctx)
}

func (p *Preparer) clear() error {
	if _, err := os.Stat(p.CacheDir); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(p.CacheDir); err != nil {
		return fmt.Errorf("removing OCR cache dir %s: %w", p.CacheDir, err)
	}
	slog.Info("Removed OCR model cache", "dir", p.CacheDir)
	return nil
}

func (p *Preparer) download(ctx context.Context) error {
	filename := p.Language + ".traineddata"
	url := strings.TrimSuffix(p.TessdataURL, "/") + "/" + filename
	dest := filepath.Join(p.CacheDir, filename)
	partial := dest + ".part"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating tessdata request: %w", err)
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: HTTP %d", url, resp.StatusCode)
	}

	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("creating %s: %w", partial, err)
	}
	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		return fmt.Errorf("writing %s: %w", partial, err)
	}
	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("moving %s into place: %w", dest, err)
	}

	slog.Info("Downloaded OCR language data", "url", url, "path", dest, "bytes", n)
	return nil
}
