package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/boundary"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/ports"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/metrics"
)

// ErrReloadBusy is returned when a dataset reload or refresh is requested
// while another one is still running.
var ErrReloadBusy = errors.New("dataset reload already in progress")

// DatasetService feeds the tracker with boundary datasets: initial load,
// operator-triggered reloads, and scheduled refreshes from the upstream
// archive.
type DatasetService struct {
	tracker *TrackerService
	source  ports.BoundarySource
	fetcher ports.BoundaryFetcher
	opts    boundary.CompileOptions

	mu sync.Mutex // one load in flight at a time
}

// NewDatasetService creates a new DatasetService. fetcher may be nil when
// no upstream download is configured; Reload then works from the local
// source only.
func NewDatasetService(tracker *TrackerService, source ports.BoundarySource, fetcher ports.BoundaryFetcher, opts boundary.CompileOptions) *DatasetService {
	return &DatasetService{tracker: tracker, source: source, fetcher: fetcher, opts: opts}
}

// Reload reads records from the source, compiles them and swaps the new
// dataset in. The active dataset keeps serving until the swap; a failed
// load leaves it untouched. Returns ErrReloadBusy if another reload or
// refresh is already running.
func (s *DatasetService) Reload(ctx context.Context) (domain.DatasetInfo, error) {
	if !s.mu.TryLock() {
		return domain.DatasetInfo{}, ErrReloadBusy
	}
	defer s.mu.Unlock()

	info, err := s.reload(ctx)
	metrics.DatasetLoads.WithLabelValues("reload", statusLabel(err)).Inc()
	return info, err
}

func (s *DatasetService) reload(ctx context.Context) (domain.DatasetInfo, error) {
	records, sourceDesc, err := s.source.Load(ctx)
	if err != nil {
		return domain.DatasetInfo{}, fmt.Errorf("load boundary records: %w", err)
	}

	opts := s.opts
	opts.Source = sourceDesc
	info, err := s.tracker.LoadDataset(records, uuid.NewString(), opts)
	if err != nil {
		return domain.DatasetInfo{}, err
	}

	slog.Info("boundary dataset installed",
		"version", info.Version,
		"zones", info.Zones,
		"regions", info.Regions,
		"adjacency_pairs", info.AdjacencyPairs)
	return info, nil
}

// Refresh downloads the latest upstream archive and reloads from it. The
// whole download-and-swap runs under the reload guard.
func (s *DatasetService) Refresh(ctx context.Context) (domain.DatasetInfo, error) {
	if s.fetcher == nil {
		return domain.DatasetInfo{}, fmt.Errorf("no dataset download source configured")
	}

	if !s.mu.TryLock() {
		return domain.DatasetInfo{}, ErrReloadBusy
	}
	defer s.mu.Unlock()

	path, err := s.fetcher.Fetch(ctx)
	if err != nil {
		metrics.DatasetLoads.WithLabelValues("refresh", "error").Inc()
		return domain.DatasetInfo{}, fmt.Errorf("fetch boundary archive: %w", err)
	}
	slog.Info("boundary archive fetched", "path", path)

	info, err := s.reload(ctx)
	metrics.DatasetLoads.WithLabelValues("refresh", statusLabel(err)).Inc()
	return info, err
}

// RefreshLoop refreshes the dataset on a fixed period until the context is
// cancelled. Failures keep the current dataset and wait for the next tick.
func (s *DatasetService) RefreshLoop(ctx context.Context, every time.Duration) {
	if every <= 0 || s.fetcher == nil {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				slog.Warn("scheduled dataset refresh failed", "error", err)
			}
		}
	}
}

// Info returns a summary of the active dataset.
func (s *DatasetService) Info() (domain.DatasetInfo, bool) {
	return s.tracker.DatasetInfo()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
