package mcp

import (
	"context"
	"fmt"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/catalog"
	"github.com/attunelabs/attune/internal/domain"
	"github.com/attunelabs/attune/internal/engine"
)

// Server wraps the MCP server with Attune functionality
type Server struct {
	mcpServer *server.Server
	skills    *engine.Service
	registry  *catalog.Registry
}

// Config contains configuration for the MCP server
type Config struct {
	SkillService *engine.Service
	Registry     *catalog.Registry
}

// NewServer creates a new MCP server for Attune
func NewServer(cfg Config) *Server {
	s := &Server{
		skills:   cfg.SkillService,
		registry: cfg.Registry,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "attune",
		Version: "0.1.0",
	}, server.WithInstructions(`
Attune tracks per-topic programming skill with an adaptive rating model.
Each submission updates the touched topics, classifies failures, and
checks layer progression.

Available tools:
- attune_submit: Record an analyzed submission against its topics
- attune_skills: List a user's tracked skills with display bands
- attune_progress: Show layer unlock state and gate progress
- attune_stuck: List stuck and at-risk topics
- attune_prereq: Find the weakest prerequisite below a topic
- attune_overview: Aggregate skill statistics for a user
- attune_topics: List the topic catalog

Display bands:
- Expert (5 stars), Proficient (4), Competent (3), Developing (2), Novice (1)
`))

	s.registerTools()

	return s
}

// registerTools registers all Attune MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("attune_submit").
		Description("Record an analyzed code submission. Updates ratings for every touched topic.").
		Handler(s.handleSubmit)

	s.mcpServer.Tool("attune_skills").
		Description("List a user's tracked skills with ratings and display bands.").
		Handler(s.handleSkills)

	s.mcpServer.Tool("attune_progress").
		Description("Show layer unlock state and progression gate criteria.").
		Handler(s.handleProgress)

	s.mcpServer.Tool("attune_stuck").
		Description("List topics the user is stuck or at risk on.").
		Handler(s.handleStuck)

	s.mcpServer.Tool("attune_prereq").
		Description("Find the weakest prerequisite below a topic for a user.").
		Handler(s.handlePrereq)

	s.mcpServer.Tool("attune_overview").
		Description("Aggregate skill statistics for a user.").
		Handler(s.handleOverview)

	s.mcpServer.Tool("attune_topics").
		Description("List the topic catalog with layers and prerequisites.").
		Handler(s.handleTopics)
}

// Input/Output types for tools

type DetectionInput struct {
	Topic     string   `json:"topic" jsonschema:"description=Topic ID or slug"`
	Positive  bool     `json:"positive,omitempty" jsonschema:"description=Whether this topic's detections passed"`
	Idiomatic bool     `json:"idiomatic,omitempty" jsonschema:"description=Whether a passing detection was fully idiomatic"`
	Trivial   bool     `json:"trivial,omitempty" jsonschema:"description=Whether a failing detection was syntactically trivial"`
	Score     *float64 `json:"score,omitempty" jsonschema:"description=Explicit score in [0 and 1] replacing detection scoring for this topic"`
}

type SubmitInput struct {
	UserID     string           `json:"user_id" jsonschema:"description=User UUID"`
	Detections []DetectionInput `json:"detections" jsonschema:"description=Per-topic analyzer verdicts for the submission"`
}

type SubmitOutput struct {
	SubmissionID string               `json:"submission_id"`
	Changes      []engine.SkillChange `json:"changes"`
	StuckTopics  []string             `json:"stuck_topics,omitempty"`
	WeakestLink  string               `json:"weakest_prerequisite,omitempty"`
	Unlocked     []string             `json:"unlocked_layers,omitempty"`
	Message      string               `json:"message"`
}

type UserInput struct {
	UserID string `json:"user_id" jsonschema:"description=User UUID"`
}

type SkillsOutput struct {
	Skills []engine.SkillReport `json:"skills"`
}

type ProgressOutput struct {
	Layers []domain.LayerProgress `json:"layers"`
}

type StuckOutput struct {
	Topics []engine.StuckReport `json:"topics"`
}

type PrereqInput struct {
	UserID string `json:"user_id" jsonschema:"description=User UUID"`
	Topic  string `json:"topic" jsonschema:"description=Topic ID or slug to analyze"`
}

type PrereqOutput struct {
	Found    bool    `json:"found"`
	TopicID  string  `json:"topic_id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Severity string  `json:"severity,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Depth    int     `json:"depth,omitempty"`
	Message  string  `json:"message"`
}

type OverviewOutput struct {
	TotalTopics      int            `json:"total_topics"`
	PracticedTopics  int            `json:"practiced_topics"`
	TotalSubmissions int            `json:"total_submissions"`
	AvgRating        float64        `json:"avg_rating"`
	AvgRD            float64        `json:"avg_rd"`
	StuckCount       int            `json:"stuck_count"`
	AtRiskCount      int            `json:"at_risk_count"`
	BandCounts       map[string]int `json:"band_counts"`
	StrongestTopic   string         `json:"strongest_topic,omitempty"`
	WeakestTopic     string         `json:"weakest_topic,omitempty"`
}

type TopicsInput struct {
	Layer string `json:"layer,omitempty" jsonschema:"description=Filter by layer,enum=fundamentals,enum=intermediate,enum=patterns"`
}

type TopicEntry struct {
	ID            string   `json:"id"`
	Slug          string   `json:"slug"`
	Name          string   `json:"name"`
	Layer         string   `json:"layer"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

type TopicsOutput struct {
	Topics []TopicEntry `json:"topics"`
}

// Tool handlers

func (s *Server) handleSubmit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		return SubmitOutput{}, fmt.Errorf("invalid user_id: %w", err)
	}

	detections := make([]engine.Detection, 0, len(input.Detections))
	for _, det := range input.Detections {
		topic, err := s.registry.Resolve(det.Topic)
		if err != nil {
			return SubmitOutput{}, fmt.Errorf("unknown topic %q: %w", det.Topic, err)
		}
		detections = append(detections, engine.Detection{
			TopicID:   topic.ID,
			Positive:  det.Positive,
			Idiomatic: det.Idiomatic,
			Trivial:   det.Trivial,
			Score:     det.Score,
		})
	}

	result, err := s.skills.ProcessSubmission(ctx, engine.Submission{
		ID:          uuid.New(),
		UserID:      userID,
		Detections:  detections,
		SubmittedAt: time.Now(),
	})
	if err != nil {
		return SubmitOutput{}, fmt.Errorf("failed to process submission: %w", err)
	}

	out := SubmitOutput{
		SubmissionID: result.SubmissionID.String(),
		Changes:      result.Changes,
		StuckTopics:  result.StuckTopics,
		Message:      fmt.Sprintf("Updated %d topic(s)", len(result.Changes)),
	}
	if result.WeakestLink != nil {
		out.WeakestLink = result.WeakestLink.TopicID
	}
	for _, layer := range result.Unlocked {
		out.Unlocked = append(out.Unlocked, string(layer))
	}
	return out, nil
}

func (s *Server) handleSkills(ctx context.Context, input UserInput) (SkillsOutput, error) {
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		return SkillsOutput{}, fmt.Errorf("invalid user_id: %w", err)
	}

	skills, err := s.skills.UserSkills(ctx, userID)
	if err != nil {
		return SkillsOutput{}, fmt.Errorf("failed to list skills: %w", err)
	}
	return SkillsOutput{Skills: skills}, nil
}

func (s *Server) handleProgress(ctx context.Context, input UserInput) (ProgressOutput, error) {
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		return ProgressOutput{}, fmt.Errorf("invalid user_id: %w", err)
	}

	report, err := s.skills.Progress(ctx, userID)
	if err != nil {
		return ProgressOutput{}, fmt.Errorf("failed to evaluate progress: %w", err)
	}
	return ProgressOutput{Layers: report.Layers}, nil
}

func (s *Server) handleStuck(ctx context.Context, input UserInput) (StuckOutput, error) {
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		return StuckOutput{}, fmt.Errorf("invalid user_id: %w", err)
	}

	topics, err := s.skills.StuckTopics(ctx, userID)
	if err != nil {
		return StuckOutput{}, fmt.Errorf("failed to list stuck topics: %w", err)
	}
	return StuckOutput{Topics: topics}, nil
}

func (s *Server) handlePrereq(ctx context.Context, input PrereqInput) (PrereqOutput, error) {
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		return PrereqOutput{}, fmt.Errorf("invalid user_id: %w", err)
	}

	weak, err := s.skills.WeakestPrerequisite(ctx, userID, input.Topic)
	if err != nil {
		return PrereqOutput{}, fmt.Errorf("failed to analyze prerequisites: %w", err)
	}
	if weak == nil {
		return PrereqOutput{Message: "No weak prerequisite found. The foundation looks sound."}, nil
	}

	return PrereqOutput{
		Found:    true,
		TopicID:  weak.TopicID,
		Name:     weak.Name,
		Severity: string(weak.Severity),
		Reason:   weak.Reason,
		Rating:   weak.Rating,
		Depth:    weak.Depth,
		Message:  fmt.Sprintf("Weakest prerequisite: %s (%s)", weak.Name, weak.Severity),
	}, nil
}

func (s *Server) handleOverview(ctx context.Context, input UserInput) (OverviewOutput, error) {
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		return OverviewOutput{}, fmt.Errorf("invalid user_id: %w", err)
	}

	ov, err := s.skills.Overview(ctx, userID)
	if err != nil {
		return OverviewOutput{}, fmt.Errorf("failed to build overview: %w", err)
	}

	return OverviewOutput{
		TotalTopics:      ov.TotalTopics,
		PracticedTopics:  ov.PracticedTopics,
		TotalSubmissions: ov.TotalSubmissions,
		AvgRating:        ov.AvgRating,
		AvgRD:            ov.AvgRD,
		StuckCount:       ov.StuckCount,
		AtRiskCount:      ov.AtRiskCount,
		BandCounts:       ov.BandCounts,
		StrongestTopic:   ov.StrongestTopic,
		WeakestTopic:     ov.WeakestTopic,
	}, nil
}

func (s *Server) handleTopics(ctx context.Context, input TopicsInput) (TopicsOutput, error) {
	var topics []domain.Topic
	if input.Layer != "" {
		layer := domain.Layer(input.Layer)
		if !layer.Valid() {
			return TopicsOutput{}, fmt.Errorf("unknown layer %q", input.Layer)
		}
		topics = s.registry.Layer(layer)
	} else {
		topics = s.registry.All()
	}

	out := TopicsOutput{Topics: make([]TopicEntry, 0, len(topics))}
	for _, t := range topics {
		out.Topics = append(out.Topics, TopicEntry{
			ID:            t.ID,
			Slug:          t.Slug,
			Name:          t.Name,
			Layer:         string(t.Layer),
			Prerequisites: t.Prerequisites,
		})
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio (for editor integration)
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
