package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/attunelabs/attune/internal/domain"
	"github.com/google/uuid"
)

// Service orchestrates the rating pipeline: decay, classification,
// Glicko-2 update, stuck detection, history, eventing and layer
// unlocks.
type Service struct {
	store     SkillStore
	catalog   TopicCatalog
	publisher EventPublisher
	logger    *slog.Logger

	rating     *domain.RatingEngine
	classifier *domain.Classifier
	stuck      *domain.StuckDetector
	prereq     *domain.PrerequisiteAnalyzer
	gate       *domain.ProgressionGate

	// Serializes concurrent submissions per (user, topic). SQL stores
	// additionally lock rows, but the pipeline itself must never
	// interleave two updates of the same skill.
	locks sync.Map
}

// NewService creates the engine service.
func NewService(store SkillStore, cat TopicCatalog, publisher EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		catalog:    cat,
		publisher:  publisher,
		logger:     logger,
		rating:     domain.NewRatingEngine(),
		classifier: domain.NewClassifier(),
		stuck:      domain.NewStuckDetector(),
		prereq:     domain.NewPrerequisiteAnalyzer(),
		gate:       domain.NewProgressionGate(),
	}
}

// Detection is the analyzer's verdict for one topic a submission
// touched. Each topic carries its own outcome; one submission can pass
// on one topic and fail on another.
type Detection struct {
	TopicID string

	// Positive means this topic's detections passed; Idiomatic
	// distinguishes a fully idiomatic pass from a merely clean one.
	Positive  bool
	Idiomatic bool

	// Trivial marks a negative detection as syntactically trivial
	// (typo, missing import), a precondition for the slip
	// classification.
	Trivial bool

	// Score, when set, replaces detection scoring for this topic.
	// Must be in [0,1]. A failing override still runs the classifier
	// so the encounter carries a cause label.
	Score *float64
}

// Submission is one analyzed code submission: the per-topic detections
// the analyzer produced for it.
type Submission struct {
	ID     uuid.UUID
	UserID uuid.UUID

	Detections []Detection

	// Opponent overrides the reference difficulty. Nil uses the fixed
	// default opponent.
	Opponent *domain.Opponent

	SubmittedAt time.Time
}

// SkillChange reports the rating movement of one topic after a
// submission.
type SkillChange struct {
	TopicID      string            `json:"topic_id"`
	Score        float64           `json:"score"`
	ErrorType    *domain.ErrorType `json:"error_type,omitempty"`
	Rating       float64           `json:"rating"`
	RatingChange float64           `json:"rating_change"`
	RD           float64           `json:"rd"`
	RDChange     float64           `json:"rd_change"`
	Volatility   float64           `json:"volatility"`
	Band         domain.Band       `json:"band"`
	Stuck        bool              `json:"stuck"`
	NewlyStuck   bool              `json:"newly_stuck"`
}

// SubmissionResult is the full outcome of processing one submission.
type SubmissionResult struct {
	SubmissionID uuid.UUID                `json:"submission_id"`
	UserID       uuid.UUID                `json:"user_id"`
	Changes      []SkillChange            `json:"changes"`
	StuckTopics  []string                 `json:"stuck_topics,omitempty"`
	WeakestLink  *domain.WeakPrerequisite `json:"weakest_prerequisite,omitempty"`
	Unlocked     []domain.Layer           `json:"unlocked_layers,omitempty"`
	ProcessedAt  time.Time                `json:"processed_at"`
}

// ProcessSubmission runs one submission through the whole pipeline.
// Topics are processed in deterministic (sorted) order; each topic is
// rated independently against the reference opponent.
func (s *Service) ProcessSubmission(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	if sub.UserID == uuid.Nil || len(sub.Detections) == 0 {
		return nil, fmt.Errorf("%w: submission needs a user and at least one detection", domain.ErrInvalidInput)
	}
	for _, det := range sub.Detections {
		if det.TopicID == "" {
			return nil, fmt.Errorf("%w: detection without a topic", domain.ErrInvalidInput)
		}
		if det.Score != nil && (*det.Score < 0 || *det.Score > 1) {
			return nil, fmt.Errorf("%w: %.2f", domain.ErrInvalidScore, *det.Score)
		}
		if _, ok := s.catalog.Topic(det.TopicID); !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTopic, det.TopicID)
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now()
	}

	detections := make([]Detection, len(sub.Detections))
	copy(detections, sub.Detections)
	sort.Slice(detections, func(i, j int) bool { return detections[i].TopicID < detections[j].TopicID })

	opp := domain.DefaultOpponent()
	if sub.Opponent != nil {
		opp = *sub.Opponent
	}

	result := &SubmissionResult{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		ProcessedAt:  sub.SubmittedAt,
	}

	// Lowest post-update rating among failed topics; the prerequisite
	// walk starts from the topic the user is struggling with most.
	var prereqTarget string
	var prereqRating float64

	for _, det := range detections {
		change, err := s.rateTopic(ctx, sub, det, opp)
		if err != nil {
			return nil, err
		}
		result.Changes = append(result.Changes, *change)

		if change.Stuck {
			result.StuckTopics = append(result.StuckTopics, det.TopicID)
		}
		if change.ErrorType != nil {
			if prereqTarget == "" || change.Rating < prereqRating {
				prereqTarget = det.TopicID
				prereqRating = change.Rating
			}
		}
	}

	if prereqTarget != "" {
		weakest, err := s.weakestFor(ctx, sub.UserID, prereqTarget)
		if err != nil {
			return nil, err
		}
		result.WeakestLink = weakest
	}

	unlocked, err := s.evaluateUnlocks(ctx, sub.UserID, sub.SubmittedAt)
	if err != nil {
		return nil, err
	}
	result.Unlocked = unlocked

	s.logger.Info("submission processed",
		"submission_id", sub.ID,
		"user_id", sub.UserID,
		"topics", len(result.Changes),
		"stuck", len(result.StuckTopics),
		"unlocked", len(result.Unlocked))

	return result, nil
}

// rateTopic updates a single (user, topic) skill under its lock.
func (s *Service) rateTopic(ctx context.Context, sub Submission, det Detection, opp domain.Opponent) (*SkillChange, error) {
	topicID := det.TopicID
	unlock := s.lock(sub.UserID, topicID)
	defer unlock()

	skill, err := s.loadOrCreate(ctx, sub.UserID, topicID)
	if err != nil {
		return nil, err
	}

	// Lazy RD decay for idle time since the last encounter.
	if skill.LastPracticedAt != nil {
		idle := sub.SubmittedAt.Sub(*skill.LastPracticedAt).Hours() / 24
		skill.RD = domain.ApplyDecay(skill.RD, idle)
	}

	score, errorType, err := s.scoreFor(ctx, sub.UserID, det, skill)
	if err != nil {
		return nil, err
	}

	before := *skill
	update := s.rating.Update(domain.RatingState{
		Rating:     skill.Rating,
		RD:         skill.RD,
		Volatility: skill.Volatility,
	}, score, opp)
	if !update.Converged {
		s.logger.Warn("volatility solver hit iteration cap",
			"user_id", sub.UserID, "topic_id", topicID)
	}

	skill.Rating = update.Rating
	skill.RD = update.RD
	skill.Volatility = update.Volatility
	skill.TimesEncountered++
	practiced := sub.SubmittedAt
	skill.LastPracticedAt = &practiced
	skill.UpdatedAt = sub.SubmittedAt

	wasStuck := skill.IsStuck
	s.stuck.Apply(skill, sub.SubmittedAt)
	skill.Clamp()

	if err := s.store.SaveSkill(ctx, skill); err != nil {
		return nil, fmt.Errorf("save skill %s: %w", topicID, err)
	}

	perf := &domain.Performance{
		ID:           uuid.New(),
		UserID:       sub.UserID,
		TopicID:      topicID,
		SubmissionID: sub.ID,
		Score:        score,
		ErrorType:    errorType,
		RatingBefore: before.Rating,
		RatingAfter:  skill.Rating,
		RDBefore:     before.RD,
		RDAfter:      skill.RD,
		CreatedAt:    sub.SubmittedAt,
	}
	if err := s.store.AddPerformance(ctx, perf); err != nil {
		return nil, fmt.Errorf("record performance %s: %w", topicID, err)
	}

	change := &SkillChange{
		TopicID:      topicID,
		Score:        score,
		ErrorType:    errorType,
		Rating:       skill.Rating,
		RatingChange: skill.Rating - before.Rating,
		RD:           skill.RD,
		RDChange:     skill.RD - before.RD,
		Volatility:   skill.Volatility,
		Band:         domain.BandFor(skill.Rating),
		Stuck:        skill.IsStuck,
		NewlyStuck:   skill.IsStuck && !wasStuck,
	}

	if s.publisher != nil {
		event := SkillChangeEvent{
			SubmissionID: sub.ID,
			UserID:       sub.UserID,
			TopicID:      topicID,
			Score:        score,
			ErrorType:    errorType,
			Rating:       skill.Rating,
			RatingChange: change.RatingChange,
			RD:           skill.RD,
			Stuck:        skill.IsStuck,
			OccurredAt:   sub.SubmittedAt,
		}
		if err := s.publisher.PublishSkillChange(ctx, event); err != nil {
			// Eventing is best-effort; the rating update already holds.
			s.logger.Warn("publish skill change failed", "topic_id", topicID, "error", err)
		}
	}

	return change, nil
}

// scoreFor resolves the performance score and error label for one topic.
// A score override wins over detection scoring, but a failing override
// still runs the classifier so the encounter carries a cause label.
func (s *Service) scoreFor(ctx context.Context, userID uuid.UUID, det Detection, skill *domain.Skill) (float64, *domain.ErrorType, error) {
	if det.Score != nil && *det.Score >= domain.ScoreClean {
		return *det.Score, nil, nil
	}
	if det.Score == nil && det.Positive {
		return domain.PositiveScore(det.Idiomatic), nil, nil
	}

	recent, err := s.recentHistory(ctx, userID, skill.TopicID)
	if err != nil {
		return 0, nil, err
	}
	verdict := s.classifier.Classify(skill, det.Trivial, recent)
	errorType := verdict.ErrorType
	if det.Score != nil {
		return *det.Score, &errorType, nil
	}
	return verdict.Score, &errorType, nil
}

// recentHistory loads the classifier's most-recent-first window.
func (s *Service) recentHistory(ctx context.Context, userID uuid.UUID, topicID string) ([]domain.HistoryEntry, error) {
	perfs, err := s.store.RecentPerformances(ctx, userID, topicID, domain.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", topicID, err)
	}
	entries := make([]domain.HistoryEntry, len(perfs))
	for i, p := range perfs {
		entries[i] = domain.HistoryEntry{Score: p.Score, ErrorType: p.ErrorType, CreatedAt: p.CreatedAt}
	}
	return entries, nil
}

func (s *Service) loadOrCreate(ctx context.Context, userID uuid.UUID, topicID string) (*domain.Skill, error) {
	skill, err := s.store.GetSkill(ctx, userID, topicID)
	if err == nil {
		if verr := skill.Validate(); verr != nil {
			return nil, fmt.Errorf("skill %s: %w", topicID, verr)
		}
		return skill, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewSkill(userID, topicID), nil
	}
	return nil, fmt.Errorf("load skill %s: %w", topicID, err)
}

// weakestFor walks the prerequisite graph below target with the user's
// full skill map.
func (s *Service) weakestFor(ctx context.Context, userID uuid.UUID, target string) (*domain.WeakPrerequisite, error) {
	skills, err := s.skillMap(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.prereq.FindWeakest(skills, s.catalog, target), nil
}

// evaluateUnlocks re-derives the layer gates and persists any newly
// passed one. Unlocks are monotonic: a persisted unlock is never
// revisited even if the criteria would no longer hold.
func (s *Service) evaluateUnlocks(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Layer, error) {
	skills, err := s.skillMap(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocks, err := s.store.Unlocks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load unlocks: %w", err)
	}

	var newly []domain.Layer
	for _, layer := range []domain.Layer{domain.LayerIntermediate, domain.LayerPatterns} {
		if _, done := unlocks[layer]; done {
			continue
		}
		prior, _ := layer.Prior()
		_, priorUnlocked := unlocks[prior]
		if prior == domain.LayerFundamentals {
			priorUnlocked = true
		}

		lp, err := s.gate.Evaluate(layer, domain.GateInput{
			PriorTopics:   s.catalog.Layer(prior),
			Skills:        skills,
			PriorUnlocked: priorUnlocked,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		if !lp.AllCriteriaMet {
			continue
		}
		if err := s.store.Unlock(ctx, userID, layer, now); err != nil {
			return nil, fmt.Errorf("persist unlock %s: %w", layer, err)
		}
		unlocks[layer] = now
		newly = append(newly, layer)
		s.logger.Info("layer unlocked", "user_id", userID, "layer", layer)
	}
	return newly, nil
}

func (s *Service) skillMap(ctx context.Context, userID uuid.UUID) (map[string]*domain.Skill, error) {
	skills, err := s.store.ListSkills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	byTopic := make(map[string]*domain.Skill, len(skills))
	for _, sk := range skills {
		byTopic[sk.TopicID] = sk
	}
	return byTopic, nil
}

func (s *Service) lock(userID uuid.UUID, topicID string) func() {
	key := userID.String() + "/" + topicID
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
