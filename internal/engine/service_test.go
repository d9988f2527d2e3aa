package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/attunelabs/attune/internal/catalog"
	"github.com/attunelabs/attune/internal/domain"
	"github.com/google/uuid"
)

// memStore is an in-memory SkillStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	skills  map[string]*domain.Skill
	perfs   map[string][]domain.Performance // most recent first
	unlocks map[uuid.UUID]map[domain.Layer]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		skills:  make(map[string]*domain.Skill),
		perfs:   make(map[string][]domain.Performance),
		unlocks: make(map[uuid.UUID]map[domain.Layer]time.Time),
	}
}

func key(userID uuid.UUID, topicID string) string {
	return userID.String() + "/" + topicID
}

func (m *memStore) GetSkill(ctx context.Context, userID uuid.UUID, topicID string) (*domain.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sk, ok := m.skills[key(userID, topicID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sk
	return &cp, nil
}

func (m *memStore) ListSkills(ctx context.Context, userID uuid.UUID) ([]*domain.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Skill
	for _, sk := range m.skills {
		if sk.UserID == userID {
			cp := *sk
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SaveSkill(ctx context.Context, skill *domain.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *skill
	m.skills[key(skill.UserID, skill.TopicID)] = &cp
	return nil
}

func (m *memStore) AddPerformance(ctx context.Context, perf *domain.Performance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(perf.UserID, perf.TopicID)
	m.perfs[k] = append([]domain.Performance{*perf}, m.perfs[k]...)
	return nil
}

func (m *memStore) RecentPerformances(ctx context.Context, userID uuid.UUID, topicID string, limit int) ([]domain.Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perfs := m.perfs[key(userID, topicID)]
	if len(perfs) > limit {
		perfs = perfs[:limit]
	}
	out := make([]domain.Performance, len(perfs))
	copy(out, perfs)
	return out, nil
}

func (m *memStore) Unlocks(ctx context.Context, userID uuid.UUID) (map[domain.Layer]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.Layer]time.Time)
	for layer, at := range m.unlocks[userID] {
		out[layer] = at
	}
	return out, nil
}

func (m *memStore) Unlock(ctx context.Context, userID uuid.UUID, layer domain.Layer, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unlocks[userID] == nil {
		m.unlocks[userID] = make(map[domain.Layer]time.Time)
	}
	m.unlocks[userID][layer] = at
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []SkillChangeEvent
}

func (p *capturePublisher) PublishSkillChange(ctx context.Context, event SkillChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func testService(t *testing.T, store SkillStore, pub EventPublisher) *Service {
	t.Helper()
	reg, err := catalog.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault error: %v", err)
	}
	return NewService(store, reg, pub, slog.New(slog.DiscardHandler))
}

func seedSkill(t *testing.T, store *memStore, userID uuid.UUID, topicID string, rating, rd float64, encounters int, lastPracticed time.Time) {
	t.Helper()
	sk := domain.NewSkill(userID, topicID)
	sk.Rating = rating
	sk.RD = rd
	sk.TimesEncountered = encounters
	sk.LastPracticedAt = &lastPracticed
	if err := store.SaveSkill(context.Background(), sk); err != nil {
		t.Fatalf("seed skill: %v", err)
	}
}

func TestProcessSubmission_LazyCreatesSkill(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()

	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:     userID,
		Detections: []Detection{{TopicID: "go/slices", Positive: true, Idiomatic: true}},
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	if len(result.Changes) != 1 {
		t.Fatalf("len(Changes) = %d; want 1", len(result.Changes))
	}
	change := result.Changes[0]
	if change.Score != domain.ScoreIdiomatic {
		t.Errorf("Score = %v; want %v", change.Score, domain.ScoreIdiomatic)
	}
	if change.Rating <= domain.RatingDefault {
		t.Errorf("Rating = %.1f; want > default after idiomatic pass", change.Rating)
	}
	if change.ErrorType != nil {
		t.Errorf("ErrorType = %v; want nil on success", *change.ErrorType)
	}

	saved, err := store.GetSkill(context.Background(), userID, "go/slices")
	if err != nil {
		t.Fatalf("GetSkill error: %v", err)
	}
	if saved.TimesEncountered != 1 {
		t.Errorf("TimesEncountered = %d; want 1", saved.TimesEncountered)
	}
	if saved.LastPracticedAt == nil {
		t.Error("LastPracticedAt not set")
	}

	perfs, err := store.RecentPerformances(context.Background(), userID, "go/slices", 10)
	if err != nil {
		t.Fatalf("RecentPerformances error: %v", err)
	}
	if len(perfs) != 1 {
		t.Fatalf("len(perfs) = %d; want 1", len(perfs))
	}
	if perfs[0].RatingBefore != domain.RatingDefault {
		t.Errorf("RatingBefore = %.1f; want %.1f", perfs[0].RatingBefore, domain.RatingDefault)
	}
}

func TestProcessSubmission_InputValidation(t *testing.T) {
	svc := testService(t, newMemStore(), nil)
	ctx := context.Background()

	if _, err := svc.ProcessSubmission(ctx, Submission{UserID: uuid.New()}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("no detections: error = %v; want ErrInvalidInput", err)
	}

	if _, err := svc.ProcessSubmission(ctx, Submission{
		UserID:     uuid.New(),
		Detections: []Detection{{TopicID: "go/nope", Positive: true}},
	}); !errors.Is(err, domain.ErrUnknownTopic) {
		t.Errorf("unknown topic: error = %v; want ErrUnknownTopic", err)
	}

	bad := 1.5
	if _, err := svc.ProcessSubmission(ctx, Submission{
		UserID:     uuid.New(),
		Detections: []Detection{{TopicID: "go/slices", Score: &bad}},
	}); !errors.Is(err, domain.ErrInvalidScore) {
		t.Errorf("bad override: error = %v; want ErrInvalidScore", err)
	}
}

func TestProcessSubmission_FailureClassifiedAsMistake(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)

	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:     uuid.New(),
		Detections: []Detection{{TopicID: "go/maps"}},
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	change := result.Changes[0]
	if change.ErrorType == nil || *change.ErrorType != domain.ErrorMistake {
		t.Errorf("ErrorType = %v; want mistake", change.ErrorType)
	}
	if change.Score != domain.ScoreMistake {
		t.Errorf("Score = %v; want %v", change.Score, domain.ScoreMistake)
	}
	if change.RatingChange >= 0 {
		t.Errorf("RatingChange = %.1f; want < 0 on failure", change.RatingChange)
	}
}

func TestProcessSubmission_LowScoreOverrideStillClassified(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()
	now := time.Now()

	// go/methods is a struggling ancestor of go/interfaces.
	seedSkill(t, store, userID, "go/methods", 1320, 200, 3, now.Add(-24*time.Hour))
	seedSkill(t, store, userID, "go/interfaces", 1500, 200, 2, now.Add(-24*time.Hour))

	low := 0.2
	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:      userID,
		Detections:  []Detection{{TopicID: "go/interfaces", Score: &low}},
		SubmittedAt: now,
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	change := result.Changes[0]
	if change.Score != low {
		t.Errorf("Score = %v; want override %v", change.Score, low)
	}
	if change.ErrorType == nil || *change.ErrorType != domain.ErrorMistake {
		t.Errorf("ErrorType = %v; want mistake on a failing override", change.ErrorType)
	}
	if result.WeakestLink == nil || result.WeakestLink.TopicID != "go/methods" {
		t.Errorf("WeakestLink = %+v; want go/methods", result.WeakestLink)
	}
}

func TestProcessSubmission_HighScoreOverrideSkipsClassifier(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()

	seedSkill(t, store, userID, "go/methods", 1320, 200, 3, time.Now())

	high := 0.9
	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:     userID,
		Detections: []Detection{{TopicID: "go/interfaces", Score: &high}},
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	change := result.Changes[0]
	if change.Score != high {
		t.Errorf("Score = %v; want override %v", change.Score, high)
	}
	if change.ErrorType != nil {
		t.Errorf("ErrorType = %v; want nil on a passing override", *change.ErrorType)
	}
	if result.WeakestLink != nil {
		t.Errorf("WeakestLink = %+v; want nil on a passing override", result.WeakestLink)
	}
}

func TestProcessSubmission_MixedDetectionsRatedPerTopic(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()

	// One submission, two verdicts: slices passed idiomatically, maps
	// failed on a typo-class error.
	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID: userID,
		Detections: []Detection{
			{TopicID: "go/slices", Positive: true, Idiomatic: true},
			{TopicID: "go/maps", Trivial: true},
		},
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	if len(result.Changes) != 2 {
		t.Fatalf("len(Changes) = %d; want 2", len(result.Changes))
	}
	maps, slices := result.Changes[0], result.Changes[1]
	if maps.TopicID != "go/maps" || slices.TopicID != "go/slices" {
		t.Fatalf("change order = %s, %s; want go/maps, go/slices", maps.TopicID, slices.TopicID)
	}

	if slices.Score != domain.ScoreIdiomatic || slices.ErrorType != nil {
		t.Errorf("slices = (%v, %v); want idiomatic pass with no label", slices.Score, slices.ErrorType)
	}
	if slices.RatingChange <= 0 {
		t.Errorf("slices RatingChange = %.1f; want > 0", slices.RatingChange)
	}

	// A fresh skill cannot slip; the trivial failure lands as a mistake.
	if maps.ErrorType == nil || *maps.ErrorType != domain.ErrorMistake {
		t.Errorf("maps ErrorType = %v; want mistake", maps.ErrorType)
	}
	if maps.Score != domain.ScoreMistake {
		t.Errorf("maps Score = %v; want %v", maps.Score, domain.ScoreMistake)
	}
	if maps.RatingChange >= 0 {
		t.Errorf("maps RatingChange = %.1f; want < 0", maps.RatingChange)
	}
}

func TestProcessSubmission_AppliesIdleDecay(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()
	now := time.Now()

	// Six idle months widen a settled RD of 100 to sqrt(100²+90²).
	seedSkill(t, store, userID, "go/structs", 1600, 100, 5, now.Add(-180*24*time.Hour))

	_, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:      userID,
		Detections:  []Detection{{TopicID: "go/structs", Positive: true}},
		SubmittedAt: now,
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	perfs, err := store.RecentPerformances(context.Background(), userID, "go/structs", 1)
	if err != nil {
		t.Fatalf("RecentPerformances error: %v", err)
	}
	want := math.Sqrt(100*100 + 90*90)
	if math.Abs(perfs[0].RDBefore-want) > 0.5 {
		t.Errorf("RDBefore = %.2f; want ~%.2f after decay", perfs[0].RDBefore, want)
	}
}

func TestProcessSubmission_EmitsSkillChangeEvents(t *testing.T) {
	store := newMemStore()
	pub := &capturePublisher{}
	svc := testService(t, store, pub)
	userID := uuid.New()

	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID: userID,
		Detections: []Detection{
			{TopicID: "go/slices", Positive: true},
			{TopicID: "go/maps", Positive: true},
		},
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("len(events) = %d; want 2", len(pub.events))
	}
	for i, event := range pub.events {
		if event.SubmissionID != result.SubmissionID {
			t.Errorf("event %d SubmissionID = %v; want %v", i, event.SubmissionID, result.SubmissionID)
		}
		if event.UserID != userID {
			t.Errorf("event %d UserID = %v; want %v", i, event.UserID, userID)
		}
	}
	// Topics are processed in sorted order.
	if pub.events[0].TopicID != "go/maps" || pub.events[1].TopicID != "go/slices" {
		t.Errorf("event order = %s, %s; want go/maps, go/slices", pub.events[0].TopicID, pub.events[1].TopicID)
	}
}

func TestProcessSubmission_ReportsWeakestPrerequisiteOnFailure(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()
	now := time.Now()

	// go/methods is a struggling ancestor of go/interfaces.
	seedSkill(t, store, userID, "go/methods", 1320, 200, 3, now.Add(-24*time.Hour))
	seedSkill(t, store, userID, "go/interfaces", 1500, 200, 2, now.Add(-24*time.Hour))

	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:      userID,
		Detections:  []Detection{{TopicID: "go/interfaces"}},
		SubmittedAt: now,
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	if result.WeakestLink == nil {
		t.Fatal("WeakestLink = nil; want go/methods")
	}
	if result.WeakestLink.TopicID != "go/methods" {
		t.Errorf("WeakestLink = %s; want go/methods", result.WeakestLink.TopicID)
	}
	if result.WeakestLink.Severity != domain.SeverityCritical {
		t.Errorf("Severity = %s; want critical", result.WeakestLink.Severity)
	}
}

func TestProcessSubmission_NoPrerequisiteWalkOnSuccess(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()

	seedSkill(t, store, userID, "go/methods", 1320, 200, 3, time.Now())

	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:     userID,
		Detections: []Detection{{TopicID: "go/interfaces", Positive: true}},
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}
	if result.WeakestLink != nil {
		t.Errorf("WeakestLink = %+v; want nil on success", result.WeakestLink)
	}
}

// seedMasteredFundamentals puts every fundamentals topic just past the
// INTERMEDIATE gate thresholds.
func seedMasteredFundamentals(t *testing.T, store *memStore, svc *Service, userID uuid.UUID, now time.Time) {
	t.Helper()
	for _, topic := range svc.catalog.Layer(domain.LayerFundamentals) {
		seedSkill(t, store, userID, topic.ID, 1700, 80, 2, now.Add(-24*time.Hour))
	}
}

func TestProcessSubmission_UnlocksIntermediate(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()
	now := time.Now()

	seedMasteredFundamentals(t, store, svc, userID, now)

	result, err := svc.ProcessSubmission(context.Background(), Submission{
		UserID:      userID,
		Detections:  []Detection{{TopicID: "go/syntax", Positive: true, Idiomatic: true}},
		SubmittedAt: now,
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}

	if len(result.Unlocked) != 1 || result.Unlocked[0] != domain.LayerIntermediate {
		t.Fatalf("Unlocked = %v; want [intermediate]", result.Unlocked)
	}

	unlocks, err := store.Unlocks(context.Background(), userID)
	if err != nil {
		t.Fatalf("Unlocks error: %v", err)
	}
	if _, ok := unlocks[domain.LayerIntermediate]; !ok {
		t.Error("unlock not persisted")
	}

	// Monotonic: a later submission must not re-report the unlock.
	result, err = svc.ProcessSubmission(context.Background(), Submission{
		UserID:      userID,
		Detections:  []Detection{{TopicID: "go/syntax", Positive: true}},
		SubmittedAt: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("ProcessSubmission error: %v", err)
	}
	for _, layer := range result.Unlocked {
		if layer == domain.LayerIntermediate {
			t.Error("intermediate unlock reported twice")
		}
	}
}

func TestProgress_OverlaysPersistedUnlocks(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()
	at := time.Now().Add(-time.Hour)

	if err := store.Unlock(context.Background(), userID, domain.LayerIntermediate, at); err != nil {
		t.Fatalf("Unlock error: %v", err)
	}

	report, err := svc.Progress(context.Background(), userID)
	if err != nil {
		t.Fatalf("Progress error: %v", err)
	}

	if len(report.Layers) != 3 {
		t.Fatalf("len(Layers) = %d; want 3", len(report.Layers))
	}
	if !report.Layers[0].Unlocked || report.Layers[0].Layer != domain.LayerFundamentals {
		t.Errorf("fundamentals not reported open: %+v", report.Layers[0])
	}

	intermediate := report.Layers[1]
	if !intermediate.Unlocked {
		t.Error("intermediate Unlocked = false; want true from persisted state")
	}
	if intermediate.UnlockedAt == nil || !intermediate.UnlockedAt.Equal(at) {
		t.Errorf("UnlockedAt = %v; want %v", intermediate.UnlockedAt, at)
	}
	// Criteria no longer hold (no skills), but the unlock stays.
	if intermediate.AllCriteriaMet {
		t.Error("AllCriteriaMet = true with no skills; want false")
	}

	if report.Layers[2].Unlocked {
		t.Error("patterns Unlocked = true; want false")
	}
}

func TestStuckTopics_OrderedStuckFirst(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()
	now := time.Now()

	// Stuck: all four criteria. At-risk: three of four (rating fine).
	stuck := domain.NewSkill(userID, "go/maps")
	stuck.Rating = 1400
	stuck.RD = 200
	stuck.Volatility = 0.15
	stuck.TimesEncountered = 5
	stuck.IsStuck = true
	since := now.Add(-48 * time.Hour)
	stuck.StuckSince = &since
	if err := store.SaveSkill(context.Background(), stuck); err != nil {
		t.Fatal(err)
	}

	atRisk := domain.NewSkill(userID, "go/slices")
	atRisk.Rating = 1600
	atRisk.RD = 200
	atRisk.Volatility = 0.15
	atRisk.TimesEncountered = 5
	if err := store.SaveSkill(context.Background(), atRisk); err != nil {
		t.Fatal(err)
	}

	healthy := domain.NewSkill(userID, "go/syntax")
	healthy.Rating = 1700
	healthy.RD = 80
	healthy.TimesEncountered = 5
	if err := store.SaveSkill(context.Background(), healthy); err != nil {
		t.Fatal(err)
	}

	reports, err := svc.StuckTopics(context.Background(), userID)
	if err != nil {
		t.Fatalf("StuckTopics error: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("len(reports) = %d; want 2", len(reports))
	}
	if reports[0].TopicID != "go/maps" || !reports[0].Status.Stuck {
		t.Errorf("reports[0] = %+v; want stuck go/maps first", reports[0])
	}
	if reports[0].StuckSince == nil {
		t.Error("StuckSince not carried through")
	}
	if reports[1].TopicID != "go/slices" || !reports[1].Status.AtRisk {
		t.Errorf("reports[1] = %+v; want at-risk go/slices", reports[1])
	}
}

func TestWeakestPrerequisite_ResolvesSlug(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store, nil)
	userID := uuid.New()

	seedSkill(t, store, userID, "go/methods", 1320, 200, 3, time.Now())

	weak, err := svc.WeakestPrerequisite(context.Background(), userID, "interfaces")
	if err != nil {
		t.Fatalf("WeakestPrerequisite error: %v", err)
	}
	if weak == nil || weak.TopicID != "go/methods" {
		t.Errorf("weakest = %+v; want go/methods", weak)
	}

	if _, err := svc.WeakestPrerequisite(context.Background(), userID, "go/nope"); !errors.Is(err, domain.ErrUnknownTopic) {
		t.Errorf("error = %v; want ErrUnknownTopic", err)
	}
}
