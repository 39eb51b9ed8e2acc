package geojson

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetcher downloads the released boundary archive, extracts the GeoJSON
// inside it, applies the region filter, and writes the result to the
// configured path. It implements ports.BoundaryFetcher.
type Fetcher struct {
	url    string
	path   string
	region string
	client *http.Client
}

func NewFetcher(url, path, region string) *Fetcher {
	return &Fetcher{
		url:    url,
		path:   path,
		region: region,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Fetch downloads and installs the boundary file, returning the path it was
// written to. The final write is a rename so a reload never sees a partial
// file.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	prefixes, err := RegionPrefixes(f.region)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	slog.Info("downloading boundary data", "url", f.url)
	zipPath, err := f.download(ctx, dir)
	if err != nil {
		return "", err
	}
	defer os.Remove(zipPath)

	kept, total, err := f.extractFiltered(zipPath, prefixes)
	if err != nil {
		return "", err
	}

	slog.Info("boundary data installed",
		"path", f.path, "zones", kept, "total", total, "region", f.region)
	return f.path, nil
}

func (f *Fetcher) download(ctx context.Context, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: HTTP %d", f.url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "timezones-*.zip")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write archive: %w", err)
	}

	slog.Info("downloaded boundary archive", "bytes", n)
	return tmp.Name(), nil
}

func (f *Fetcher) extractFiltered(zipPath string, prefixes []string) (kept, total int, err error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	var member *zip.File
	for _, zf := range zr.File {
		if strings.HasSuffix(zf.Name, ".geojson") || strings.HasSuffix(zf.Name, ".json") {
			member = zf
			break
		}
	}
	if member == nil {
		return 0, 0, fmt.Errorf("no geojson file in archive")
	}

	src, err := member.Open()
	if err != nil {
		return 0, 0, fmt.Errorf("open archive member: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "timezones-*.geojson")
	if err != nil {
		return 0, 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	kept, total, err = writeFiltered(tmp, bufio.NewReaderSize(src, 1<<20), prefixes)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, 0, fmt.Errorf("filter %s: %w", member.Name, err)
	}

	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return 0, 0, fmt.Errorf("install boundary file: %w", err)
	}
	return kept, total, nil
}

// writeFiltered copies matching features from a FeatureCollection stream
// into a new FeatureCollection, never materializing the full document.
func writeFiltered(w io.Writer, r io.Reader, prefixes []string) (kept, total int, err error) {
	bw := bufio.NewWriterSize(w, 1<<20)
	if _, err := bw.WriteString(`{"type":"FeatureCollection","features":[`); err != nil {
		return 0, 0, err
	}

	err = eachFeature(r, func(raw json.RawMessage) error {
		total++
		var meta struct {
			Properties featureProps `json:"properties"`
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil
		}
		if !MatchesRegion(meta.Properties.zoneID(), prefixes) {
			return nil
		}
		if kept > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := bw.Write(raw); err != nil {
			return err
		}
		kept++
		return nil
	})
	if err != nil {
		return kept, total, err
	}

	if _, err := bw.WriteString(`]}`); err != nil {
		return kept, total, err
	}
	return kept, total, bw.Flush()
}
