package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/boundary"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/ports"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/metrics"
)

// TrackerConfig carries the evaluation knobs.
type TrackerConfig struct {
	// DefaultEntityID names the entity used when a sample carries none.
	DefaultEntityID string
	// HysteresisThreshold is the number of consecutive detections of a new
	// zone required before it becomes confirmed.
	HysteresisThreshold int
	// SearchRadiusMiles bounds every boundary distance query.
	SearchRadiusMiles float64
	// UnresolvedRetrySeconds is the re-check delay after a sample outside
	// all coverage.
	UnresolvedRetrySeconds int
	// PendingProbeSeconds caps the delay while a zone switch awaits
	// confirmation.
	PendingProbeSeconds int
}

func (c *TrackerConfig) applyDefaults() {
	if c.DefaultEntityID == "" {
		c.DefaultEntityID = "default"
	}
	if c.HysteresisThreshold < 1 {
		c.HysteresisThreshold = 2
	}
	if c.SearchRadiusMiles <= 0 {
		c.SearchRadiusMiles = 100
	}
	if c.UnresolvedRetrySeconds <= 0 {
		c.UnresolvedRetrySeconds = 300
	}
	if c.PendingProbeSeconds <= 0 {
		c.PendingProbeSeconds = DefaultMinIntervalSeconds
	}
}

type entityState struct {
	mu     sync.Mutex
	loaded bool
	state  domain.TimezoneState
}

// TrackerService evaluates position samples against the installed boundary
// dataset and owns the per-entity confirmation state. The dataset is a
// single atomic snapshot: loads swap it wholesale, evaluations read it
// without locking. Each entity's state is guarded by its own mutex so one
// entity's evaluation never serializes another's.
type TrackerService struct {
	cfg    TrackerConfig
	policy IntervalPolicy

	dataset atomic.Pointer[boundary.Dataset]

	mu       sync.RWMutex
	entities map[string]*entityState

	journal   ports.TransitionJournal
	store     ports.StateStore
	publisher ports.EventPublisher
	notifier  ports.ZoneNotifier
}

// NewTrackerService creates a new TrackerService. journal, store, publisher
// and notifier may each be nil; the corresponding side effect is skipped.
func NewTrackerService(
	cfg TrackerConfig,
	policy IntervalPolicy,
	journal ports.TransitionJournal,
	store ports.StateStore,
	publisher ports.EventPublisher,
	notifier ports.ZoneNotifier,
) *TrackerService {
	cfg.applyDefaults()
	if policy == nil {
		policy = NewCategoricalInterval(DefaultMinIntervalSeconds, DefaultMaxIntervalSeconds)
	}
	return &TrackerService{
		cfg:       cfg,
		policy:    policy,
		entities:  make(map[string]*entityState),
		journal:   journal,
		store:     store,
		publisher: publisher,
		notifier:  notifier,
	}
}

// LoadDataset compiles records into a dataset and installs it atomically.
// On a compile error the previously installed dataset stays active.
func (s *TrackerService) LoadDataset(records []domain.BoundaryRecord, version string, opts boundary.CompileOptions) (domain.DatasetInfo, error) {
	start := time.Now()
	ds, err := boundary.Compile(records, version, opts)
	if err != nil {
		return domain.DatasetInfo{}, fmt.Errorf("compile boundary dataset: %w", err)
	}
	s.dataset.Store(ds)

	info := ds.Info()
	metrics.DatasetBuildDuration.Observe(time.Since(start).Seconds())
	metrics.DatasetRegions.Set(float64(info.Regions))
	metrics.DatasetZones.Set(float64(info.Zones))
	metrics.DatasetAdjacencyPairs.Set(float64(info.AdjacencyPairs))
	metrics.DatasetBuiltTimestamp.Set(float64(info.BuiltAt.Unix()))
	return info, nil
}

// Dataset returns the active dataset snapshot, or nil before the first load.
func (s *TrackerService) Dataset() *boundary.Dataset {
	return s.dataset.Load()
}

// DatasetInfo returns a summary of the active dataset.
func (s *TrackerService) DatasetInfo() (domain.DatasetInfo, bool) {
	ds := s.dataset.Load()
	if ds == nil {
		return domain.DatasetInfo{}, false
	}
	return ds.Info(), true
}

// Evaluate runs one position sample through containment, distance,
// hysteresis and scheduling. It is the single mutation path for the
// sample's entity state.
func (s *TrackerService) Evaluate(ctx context.Context, sample *domain.PositionSample) (*domain.Evaluation, error) {
	start := time.Now()

	if err := validateSample(sample); err != nil {
		return nil, err
	}
	ds := s.dataset.Load()
	if ds == nil {
		return nil, domain.ErrNoDataset
	}

	entityID := sample.EntityID
	if entityID == "" {
		entityID = s.cfg.DefaultEntityID
	}
	if sample.Time.IsZero() {
		sample.Time = time.Now().UTC()
	}

	es := s.entity(entityID)
	es.mu.Lock()
	defer es.mu.Unlock()
	s.restoreState(ctx, entityID, es)

	p := sample.Location
	radius := s.cfg.SearchRadiusMiles
	detected, region, resolved := ds.Locate(p)

	var edge, headingDist *float64
	nearest := ""
	if resolved {
		if dist, farZone, ok := ds.EdgeDistance(p, region, radius); ok {
			edge = &dist
			nearest = farZone
		}
		if h, ok := usableHeading(sample); ok {
			if dist, farZone, ok := ds.HeadingDistance(p, h, region, radius); ok {
				headingDist = &dist
				if nearest == "" {
					nearest = farZone
				}
			}
		}
	} else if ni, ok := ds.NearestRegion(p, radius); ok {
		// Outside all coverage: measure against the closest region instead,
		// without touching the state machine.
		nearest = ds.RegionZone(ni)
		if dist, ok := ds.DistanceToRegion(p, ni, radius); ok {
			edge = &dist
		}
		if h, ok := usableHeading(sample); ok {
			if dist, ok := ds.HeadingToRegion(p, h, ni, radius); ok {
				headingDist = &dist
			}
		}
	}

	prev := es.state.Confirmed
	pendingBefore := es.state.Pending
	changed := false
	if resolved {
		changed = applyDetection(&es.state, detected, s.cfg.HysteresisThreshold)
		metrics.Evaluations.WithLabelValues("resolved").Inc()
		if pendingBefore != "" && !changed && es.state.Pending == "" {
			metrics.HysteresisResets.Inc()
		}
	} else {
		metrics.Evaluations.WithLabelValues("unresolved").Inc()
	}
	es.state.UpdatedAt = sample.Time

	minDist := minDistance(edge, headingDist)
	var next int
	switch {
	case !resolved:
		next = s.policy.Clamp(s.cfg.UnresolvedRetrySeconds)
	case es.state.Pending != "":
		next = s.policy.Interval(minDist, sample.Speed)
		if probe := s.policy.Clamp(s.cfg.PendingProbeSeconds); probe < next {
			next = probe
		}
	default:
		next = s.policy.Interval(minDist, sample.Speed)
	}

	ev := &domain.Evaluation{
		EntityID:         entityID,
		DetectedZone:     detected,
		ConfirmedZone:    es.state.Confirmed,
		PendingZone:      es.state.Pending,
		PendingCount:     es.state.PendingCount,
		EdgeDistance:     edge,
		HeadingDistance:  headingDist,
		NearestZone:      nearest,
		DistanceCategory: DistanceLabel(minDist),
		SpeedCategory:    SpeedLabel(sample.Speed),
		NextInterval:     next,
		ZoneChanged:      changed,
		DatasetVersion:   ds.Version(),
		EvaluatedAt:      time.Now().UTC(),
	}

	if changed {
		s.commitTransition(ctx, entityID, prev, es.state.Confirmed, p, sample.Time)
	}
	s.saveState(ctx, es)

	if s.publisher != nil {
		_ = s.publisher.PublishEvaluation(ctx, ev)
	}

	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	return ev, nil
}

// State returns a snapshot of one entity's tracking state.
func (s *TrackerService) State(entityID string) (domain.TimezoneState, bool) {
	if entityID == "" {
		entityID = s.cfg.DefaultEntityID
	}
	s.mu.RLock()
	es := s.entities[entityID]
	s.mu.RUnlock()
	if es == nil {
		return domain.TimezoneState{}, false
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	return es.state, true
}

// States returns snapshots for every entity seen so far, ordered by id.
func (s *TrackerService) States() []domain.TimezoneState {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]domain.TimezoneState, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.State(id); ok {
			out = append(out, st)
		}
	}
	return out
}

func (s *TrackerService) entity(id string) *entityState {
	s.mu.RLock()
	es := s.entities[id]
	s.mu.RUnlock()
	if es != nil {
		return es
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if es = s.entities[id]; es == nil {
		es = &entityState{state: domain.TimezoneState{EntityID: id}}
		s.entities[id] = es
		metrics.TrackedEntities.Set(float64(len(s.entities)))
	}
	return es
}

// restoreState pulls the persisted state the first time an entity shows up.
// Caller holds the entity lock.
func (s *TrackerService) restoreState(ctx context.Context, id string, es *entityState) {
	if es.loaded {
		return
	}
	es.loaded = true
	if s.store == nil {
		return
	}

	st, err := s.store.Load(ctx, id)
	if err != nil {
		slog.Warn("restore tracking state", "entity", id, "error", err)
		return
	}
	if st != nil {
		es.state = *st
		es.state.EntityID = id
	}
}

func (s *TrackerService) saveState(ctx context.Context, es *entityState) {
	if s.store == nil {
		return
	}
	st := es.state
	if err := s.store.Save(ctx, &st); err != nil {
		slog.Warn("persist tracking state", "entity", st.EntityID, "error", err)
	}
}

func (s *TrackerService) commitTransition(ctx context.Context, entityID, from, to string, p domain.GeoPoint, at time.Time) {
	tr := &domain.ZoneTransition{
		ID:       uuid.NewString(),
		EntityID: entityID,
		FromZone: from,
		ToZone:   to,
		Location: p,
		Time:     at,
	}
	metrics.ZoneChanges.WithLabelValues(to).Inc()
	slog.Info("timezone changed", "entity", entityID, "from", from, "to", to)

	if s.journal != nil {
		if err := s.journal.Record(ctx, tr); err != nil {
			slog.Warn("record zone transition", "entity", entityID, "error", err)
		}
	}
	if s.publisher != nil {
		_ = s.publisher.PublishZoneChange(ctx, tr)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyZoneChange(ctx, tr); err != nil {
			slog.Warn("notify zone change", "entity", entityID, "error", err)
		}
	}
}

func validateSample(sample *domain.PositionSample) error {
	if sample == nil {
		return domain.ErrInvalidSample
	}
	p := sample.Location
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) ||
		p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: latitude %v, longitude %v", domain.ErrInvalidSample, p.Lat, p.Lon)
	}
	if sample.Heading != nil && (math.IsNaN(*sample.Heading) || math.IsInf(*sample.Heading, 0)) {
		return fmt.Errorf("%w: heading %v", domain.ErrInvalidSample, *sample.Heading)
	}
	if sample.Speed != nil && (math.IsNaN(*sample.Speed) || math.IsInf(*sample.Speed, 0) || *sample.Speed < 0) {
		return fmt.Errorf("%w: speed %v", domain.ErrInvalidSample, *sample.Speed)
	}
	return nil
}

// usableHeading returns the heading normalized to [0, 360) when present and
// when the sample moves fast enough for the reading to mean anything.
func usableHeading(sample *domain.PositionSample) (float64, bool) {
	if sample.Heading == nil {
		return 0, false
	}
	if sample.Speed != nil && *sample.Speed < SpeedStoppedMaxMPH {
		return 0, false
	}
	h := math.Mod(*sample.Heading, 360)
	if h < 0 {
		h += 360
	}
	return h, true
}

func minDistance(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *b < *a {
		return b
	}
	return a
}
