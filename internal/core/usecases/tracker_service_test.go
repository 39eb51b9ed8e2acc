package usecases_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/boundary"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/ports"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/usecases"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/geospatial"
)

// --- Mocks ---

type mockJournal struct {
	recordFn func(ctx context.Context, tr *domain.ZoneTransition) error
	recentFn func(ctx context.Context, entityID string, limit int) ([]domain.ZoneTransition, error)
	countFn  func(ctx context.Context, since time.Time) (map[string]int, error)
}

func (m *mockJournal) Record(ctx context.Context, tr *domain.ZoneTransition) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, tr)
	}
	return nil
}

func (m *mockJournal) Recent(ctx context.Context, entityID string, limit int) ([]domain.ZoneTransition, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, entityID, limit)
	}
	return nil, nil
}

func (m *mockJournal) CountByZone(ctx context.Context, since time.Time) (map[string]int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, since)
	}
	return nil, nil
}

type mockStore struct {
	loadFn func(ctx context.Context, entityID string) (*domain.TimezoneState, error)
	saveFn func(ctx context.Context, st *domain.TimezoneState) error
}

func (m *mockStore) Load(ctx context.Context, entityID string) (*domain.TimezoneState, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, entityID)
	}
	return nil, nil
}

func (m *mockStore) Save(ctx context.Context, st *domain.TimezoneState) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, st)
	}
	return nil
}

type mockPublisher struct {
	sampleFn     func(ctx context.Context, sample *domain.PositionSample) error
	evaluationFn func(ctx context.Context, ev *domain.Evaluation) error
	zoneChangeFn func(ctx context.Context, tr *domain.ZoneTransition) error
	broadcastFn  func(ctx context.Context, data []byte) error
}

func (m *mockPublisher) PublishPositionSample(ctx context.Context, sample *domain.PositionSample) error {
	if m.sampleFn != nil {
		return m.sampleFn(ctx, sample)
	}
	return nil
}

func (m *mockPublisher) PublishEvaluation(ctx context.Context, ev *domain.Evaluation) error {
	if m.evaluationFn != nil {
		return m.evaluationFn(ctx, ev)
	}
	return nil
}

func (m *mockPublisher) PublishZoneChange(ctx context.Context, tr *domain.ZoneTransition) error {
	if m.zoneChangeFn != nil {
		return m.zoneChangeFn(ctx, tr)
	}
	return nil
}

func (m *mockPublisher) PublishBroadcast(ctx context.Context, data []byte) error {
	if m.broadcastFn != nil {
		return m.broadcastFn(ctx, data)
	}
	return nil
}

type mockNotifier struct {
	notifyFn func(ctx context.Context, tr *domain.ZoneTransition) error
}

func (m *mockNotifier) NotifyZoneChange(ctx context.Context, tr *domain.ZoneTransition) error {
	if m.notifyFn != nil {
		return m.notifyFn(ctx, tr)
	}
	return nil
}

// --- Fixture ---

func rectRing(minLat, minLon, maxLat, maxLon float64) domain.Ring {
	return domain.Ring{
		{Lat: minLat, Lon: minLon},
		{Lat: minLat, Lon: maxLon},
		{Lat: maxLat, Lon: maxLon},
		{Lat: maxLat, Lon: minLon},
	}
}

// Two wide zones sharing the meridian border at lon -104, each spanning
// about 320 miles east-west so points 60 miles from the border still sit
// deep inside.
func denverChicagoRecords() []domain.BoundaryRecord {
	return []domain.BoundaryRecord{
		{ZoneID: "America/Denver", Polygons: []domain.PolygonRings{{rectRing(39, -110, 41, -104)}}},
		{ZoneID: "America/Chicago", Polygons: []domain.PolygonRings{{rectRing(39, -104, 41, -98)}}},
	}
}

func lonAtMilesFromBorder(miles float64) float64 {
	return miles / (geospatial.MilesPerDegree * math.Cos(40*math.Pi/180))
}

func sampleAt(lat, lon float64, speed, heading *float64) *domain.PositionSample {
	return &domain.PositionSample{
		EntityID: "car",
		Location: domain.GeoPoint{Lat: lat, Lon: lon},
		Speed:    speed,
		Heading:  heading,
		Time:     time.Now().UTC(),
	}
}

func newTestTracker(
	t *testing.T,
	cfg usecases.TrackerConfig,
	journal *mockJournal,
	store *mockStore,
	publisher *mockPublisher,
	notifier *mockNotifier,
) *usecases.TrackerService {
	t.Helper()

	// Typed nils must become nil interfaces or the service would try to
	// call through them.
	var j ports.TransitionJournal
	if journal != nil {
		j = journal
	}
	var st ports.StateStore
	if store != nil {
		st = store
	}
	var pub ports.EventPublisher
	if publisher != nil {
		pub = publisher
	}
	var n ports.ZoneNotifier
	if notifier != nil {
		n = notifier
	}

	svc := usecases.NewTrackerService(cfg, nil, j, st, pub, n)
	if _, err := svc.LoadDataset(denverChicagoRecords(), "v1", boundary.CompileOptions{}); err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	return svc
}

// --- Tests ---

func TestTrackerService_Evaluate_NoDataset(t *testing.T) {
	svc := usecases.NewTrackerService(usecases.TrackerConfig{}, nil, nil, nil, nil, nil)

	_, err := svc.Evaluate(context.Background(), sampleAt(40, -105, nil, nil))
	if !errors.Is(err, domain.ErrNoDataset) {
		t.Errorf("expected ErrNoDataset, got %v", err)
	}
}

func TestTrackerService_Evaluate_InvalidSample(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, nil, nil, nil)

	bad := []*domain.PositionSample{
		sampleAt(95, -105, nil, nil),
		sampleAt(40, -200, nil, nil),
		sampleAt(math.NaN(), -105, nil, nil),
		sampleAt(40, -105, fptr(-5), nil),
		sampleAt(40, -105, nil, fptr(math.Inf(1))),
	}
	for i, sample := range bad {
		if _, err := svc.Evaluate(context.Background(), sample); !errors.Is(err, domain.ErrInvalidSample) {
			t.Errorf("sample %d: expected ErrInvalidSample, got %v", i, err)
		}
	}
	if _, ok := svc.State("car"); ok {
		t.Error("invalid samples must not create entity state")
	}
}

func TestTrackerService_Evaluate_FirstFix(t *testing.T) {
	var notified []*domain.ZoneTransition
	notifier := &mockNotifier{notifyFn: func(ctx context.Context, tr *domain.ZoneTransition) error {
		notified = append(notified, tr)
		return nil
	}}
	var published []*domain.Evaluation
	publisher := &mockPublisher{evaluationFn: func(ctx context.Context, ev *domain.Evaluation) error {
		published = append(published, ev)
		return nil
	}}
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, nil, publisher, notifier)

	p := sampleAt(40, -104-lonAtMilesFromBorder(1), fptr(45), nil)
	ev, err := svc.Evaluate(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ev.DetectedZone != "America/Denver" || ev.ConfirmedZone != "America/Denver" {
		t.Errorf("expected first fix confirmed immediately, got detected=%s confirmed=%s", ev.DetectedZone, ev.ConfirmedZone)
	}
	if !ev.ZoneChanged {
		t.Error("expected ZoneChanged on first fix")
	}
	if ev.EdgeDistance == nil || math.Abs(*ev.EdgeDistance-1.0) > 0.05 {
		t.Errorf("expected edge distance about 1 mile, got %v", ev.EdgeDistance)
	}
	if ev.NearestZone != "America/Chicago" {
		t.Errorf("expected nearest zone America/Chicago, got %s", ev.NearestZone)
	}
	if ev.DatasetVersion != "v1" {
		t.Errorf("expected dataset version v1, got %s", ev.DatasetVersion)
	}
	if len(notified) != 1 || notified[0].FromZone != "" || notified[0].ToZone != "America/Denver" {
		t.Errorf("expected one notification for the first fix, got %+v", notified)
	}
	if len(published) != 1 {
		t.Errorf("expected one published evaluation, got %d", len(published))
	}
}

func TestTrackerService_Evaluate_Hysteresis_Flapping(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{HysteresisThreshold: 2}, nil, nil, nil, nil)

	denver := sampleAt(40, -105, fptr(45), nil)
	chicago := sampleAt(40, -103, fptr(45), nil)

	// A, then B A B A: every return to A interrupts B's streak.
	seq := []*domain.PositionSample{denver, chicago, denver, chicago, denver}
	for i, sample := range seq {
		ev, err := svc.Evaluate(context.Background(), sample)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if ev.ConfirmedZone != "America/Denver" {
			t.Fatalf("step %d: expected confirmed America/Denver, got %s", i, ev.ConfirmedZone)
		}
	}

	st, ok := svc.State("car")
	if !ok || st.Pending != "" || st.PendingCount != 0 {
		t.Errorf("expected pending cleared after returning home, got %+v", st)
	}
}

func TestTrackerService_Evaluate_Hysteresis_Commit(t *testing.T) {
	var recorded []*domain.ZoneTransition
	journal := &mockJournal{recordFn: func(ctx context.Context, tr *domain.ZoneTransition) error {
		recorded = append(recorded, tr)
		return nil
	}}
	svc := newTestTracker(t, usecases.TrackerConfig{HysteresisThreshold: 2}, journal, nil, nil, nil)

	denver := sampleAt(40, -105, fptr(45), nil)
	chicago := sampleAt(40, -103, fptr(45), nil)

	if _, err := svc.Evaluate(context.Background(), denver); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev, err := svc.Evaluate(context.Background(), chicago)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ConfirmedZone != "America/Denver" || ev.PendingZone != "America/Chicago" || ev.PendingCount != 1 {
		t.Fatalf("expected pending America/Chicago count 1, got %+v", ev)
	}
	if ev.ZoneChanged {
		t.Error("first observation of a new zone must not commit")
	}

	ev, err = svc.Evaluate(context.Background(), chicago)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ConfirmedZone != "America/Chicago" || !ev.ZoneChanged {
		t.Fatalf("expected commit on second observation, got %+v", ev)
	}
	if ev.PendingZone != "" || ev.PendingCount != 0 {
		t.Errorf("expected pending cleared after commit, got pending=%s count=%d", ev.PendingZone, ev.PendingCount)
	}

	if len(recorded) != 2 {
		t.Fatalf("expected 2 journal records (first fix and commit), got %d", len(recorded))
	}
	last := recorded[1]
	if last.FromZone != "America/Denver" || last.ToZone != "America/Chicago" {
		t.Errorf("expected transition Denver to Chicago, got %s to %s", last.FromZone, last.ToZone)
	}
	if last.ID == "" || last.EntityID != "car" {
		t.Errorf("expected journaled transition with id and entity, got %+v", last)
	}
}

func TestTrackerService_Evaluate_Unresolved(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{UnresolvedRetrySeconds: 300}, nil, nil, nil, nil)

	if _, err := svc.Evaluate(context.Background(), sampleAt(40, -105, fptr(45), nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// South of both zones: outside all coverage.
	ev, err := svc.Evaluate(context.Background(), sampleAt(38, -104, fptr(45), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.DetectedZone != "" {
		t.Errorf("expected unresolved detection, got %s", ev.DetectedZone)
	}
	if ev.ConfirmedZone != "America/Denver" {
		t.Errorf("expected confirmed zone untouched, got %s", ev.ConfirmedZone)
	}
	if ev.ZoneChanged {
		t.Error("unresolved sample must not change the zone")
	}
	if ev.NextInterval != 300 {
		t.Errorf("expected unresolved retry interval 300, got %d", ev.NextInterval)
	}
	if ev.NearestZone != "America/Denver" {
		t.Errorf("expected nearest zone America/Denver, got %s", ev.NearestZone)
	}
	if ev.EdgeDistance == nil || math.Abs(*ev.EdgeDistance-69.1) > 1 {
		t.Errorf("expected about 69 miles to the nearest boundary, got %v", ev.EdgeDistance)
	}

	st, _ := svc.State("car")
	if st.Pending != "" || st.PendingCount != 0 || st.Confirmed != "America/Denver" {
		t.Errorf("expected state untouched by unresolved sample, got %+v", st)
	}
}

func TestTrackerService_Evaluate_PendingProbe(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{HysteresisThreshold: 3, PendingProbeSeconds: 30}, nil, nil, nil, nil)

	if _, err := svc.Evaluate(context.Background(), sampleAt(40, -105, fptr(45), nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Deep inside Chicago and stopped: the table alone would wait an hour,
	// but an unconfirmed switch is probed quickly.
	far := sampleAt(40, -104+lonAtMilesFromBorder(60), fptr(0), nil)
	ev, err := svc.Evaluate(context.Background(), far)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.PendingZone != "America/Chicago" || ev.PendingCount != 1 {
		t.Fatalf("expected pending America/Chicago, got %+v", ev)
	}
	if ev.NextInterval != 30 {
		t.Errorf("expected pending probe interval 30, got %d", ev.NextInterval)
	}
}

func TestTrackerService_Evaluate_Scenario(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{HysteresisThreshold: 2}, nil, nil, nil, nil)

	steps := []struct {
		sample        *domain.PositionSample
		wantConfirmed string
	}{
		{sampleAt(40, -104-lonAtMilesFromBorder(60), fptr(0), nil), "America/Denver"},
		{sampleAt(40, -104-lonAtMilesFromBorder(60), fptr(45), nil), "America/Denver"},
		{sampleAt(40, -104+lonAtMilesFromBorder(1), fptr(45), nil), "America/Denver"},
		{sampleAt(40, -104+lonAtMilesFromBorder(1), fptr(45), nil), "America/Chicago"},
	}

	var intervals []int
	for i, step := range steps {
		ev, err := svc.Evaluate(context.Background(), step.sample)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if ev.ConfirmedZone != step.wantConfirmed {
			t.Fatalf("step %d: expected confirmed %s, got %s", i, step.wantConfirmed, ev.ConfirmedZone)
		}
		intervals = append(intervals, ev.NextInterval)
	}

	// Stopped far away: the longest wait. Moving at highway speed from 60
	// miles out: a mid-range wait. One mile past the border: fast probes.
	if intervals[0] != 3600 {
		t.Errorf("expected 3600s stopped far away, got %d", intervals[0])
	}
	if intervals[1] < 900 || intervals[1] > 1800 {
		t.Errorf("expected 15 to 30 minutes on approach, got %d", intervals[1])
	}
	if intervals[2] != 30 || intervals[3] != 30 {
		t.Errorf("expected 30s probes near the border, got %d and %d", intervals[2], intervals[3])
	}
}

func TestTrackerService_Evaluate_SteadyStateIdempotent(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, nil, nil, nil)

	sample := sampleAt(40, -104-lonAtMilesFromBorder(1), fptr(45), fptr(90))
	if _, err := svc.Evaluate(context.Background(), sample); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.Evaluate(context.Background(), sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Evaluate(context.Background(), sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.DetectedZone != second.DetectedZone ||
		first.ConfirmedZone != second.ConfirmedZone ||
		first.PendingZone != second.PendingZone ||
		first.PendingCount != second.PendingCount ||
		first.NearestZone != second.NearestZone ||
		first.NextInterval != second.NextInterval ||
		first.ZoneChanged != second.ZoneChanged {
		t.Errorf("expected identical steady-state results, got %+v then %+v", first, second)
	}
	if *first.EdgeDistance != *second.EdgeDistance {
		t.Errorf("expected identical edge distances, got %v and %v", *first.EdgeDistance, *second.EdgeDistance)
	}
}

func TestTrackerService_Evaluate_RestoresState(t *testing.T) {
	store := &mockStore{loadFn: func(ctx context.Context, entityID string) (*domain.TimezoneState, error) {
		return &domain.TimezoneState{EntityID: entityID, Confirmed: "America/Chicago"}, nil
	}}
	notified := 0
	notifier := &mockNotifier{notifyFn: func(ctx context.Context, tr *domain.ZoneTransition) error {
		notified++
		return nil
	}}
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, store, nil, notifier)

	ev, err := svc.Evaluate(context.Background(), sampleAt(40, -103, fptr(45), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ZoneChanged {
		t.Error("expected restored state to absorb the detection without a change")
	}
	if ev.ConfirmedZone != "America/Chicago" {
		t.Errorf("expected restored confirmed zone, got %s", ev.ConfirmedZone)
	}
	if notified != 0 {
		t.Errorf("expected no notification, got %d", notified)
	}
}

func TestTrackerService_Evaluate_SavesState(t *testing.T) {
	var saved []*domain.TimezoneState
	store := &mockStore{saveFn: func(ctx context.Context, st *domain.TimezoneState) error {
		saved = append(saved, st)
		return nil
	}}
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, store, nil, nil)

	if _, err := svc.Evaluate(context.Background(), sampleAt(40, -105, fptr(45), nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected one saved state, got %d", len(saved))
	}
	if saved[0].EntityID != "car" || saved[0].Confirmed != "America/Denver" {
		t.Errorf("expected saved state for car in America/Denver, got %+v", saved[0])
	}
}

func TestTrackerService_LoadDataset_BadData(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, nil, nil, nil)

	bad := []domain.BoundaryRecord{{ZoneID: "", Polygons: []domain.PolygonRings{{rectRing(0, 0, 1, 1)}}}}
	if _, err := svc.LoadDataset(bad, "v2", boundary.CompileOptions{}); err == nil {
		t.Fatal("expected compile error")
	}

	// The previous dataset keeps serving.
	ev, err := svc.Evaluate(context.Background(), sampleAt(40, -105, fptr(45), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.DatasetVersion != "v1" {
		t.Errorf("expected dataset v1 still active, got %s", ev.DatasetVersion)
	}
}

func TestTrackerService_Evaluate_HeadingGating(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, nil, nil, nil)
	lon := -104 - lonAtMilesFromBorder(1)

	// Stopped: the heading reading is noise and is ignored.
	ev, err := svc.Evaluate(context.Background(), sampleAt(40, lon, fptr(0), fptr(90)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.HeadingDistance != nil {
		t.Errorf("expected no heading distance when stopped, got %v", *ev.HeadingDistance)
	}

	// Moving east toward the border: about one mile along the ray.
	ev, err = svc.Evaluate(context.Background(), sampleAt(40, lon, fptr(45), fptr(90)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.HeadingDistance == nil || math.Abs(*ev.HeadingDistance-1.0) > 0.05 {
		t.Errorf("expected heading distance about 1 mile, got %v", ev.HeadingDistance)
	}

	// Moving with no speed reported: heading still counts.
	ev, err = svc.Evaluate(context.Background(), sampleAt(40, lon, nil, fptr(90)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.HeadingDistance == nil {
		t.Error("expected heading distance with unknown speed")
	}
}

func TestTrackerService_State(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{}, nil, nil, nil, nil)

	if _, ok := svc.State("car"); ok {
		t.Error("expected no state before any evaluation")
	}

	if _, err := svc.Evaluate(context.Background(), sampleAt(40, -105, fptr(45), nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, ok := svc.State("car")
	if !ok || st.Confirmed != "America/Denver" {
		t.Errorf("expected car confirmed in America/Denver, got (%+v, %v)", st, ok)
	}

	states := svc.States()
	if len(states) != 1 || states[0].EntityID != "car" {
		t.Errorf("expected one tracked entity, got %+v", states)
	}
}

func TestTrackerService_Evaluate_DefaultEntity(t *testing.T) {
	svc := newTestTracker(t, usecases.TrackerConfig{DefaultEntityID: "device_tracker.van"}, nil, nil, nil, nil)

	sample := sampleAt(40, -105, fptr(45), nil)
	sample.EntityID = ""
	ev, err := svc.Evaluate(context.Background(), sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.EntityID != "device_tracker.van" {
		t.Errorf("expected default entity id, got %s", ev.EntityID)
	}
	if _, ok := svc.State("device_tracker.van"); !ok {
		t.Error("expected state under the default entity id")
	}
}
