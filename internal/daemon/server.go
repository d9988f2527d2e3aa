package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/catalog"
	"github.com/attunelabs/attune/internal/coach"
	"github.com/attunelabs/attune/internal/config"
	"github.com/attunelabs/attune/internal/domain"
	"github.com/attunelabs/attune/internal/engine"
	"github.com/attunelabs/attune/internal/queue"
)

// Server represents the Attune daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux

	// Services
	skills   *engine.Service
	registry *catalog.Registry
	producer *queue.Producer
	notifier *coach.Notifier
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config       *config.LocalConfig
	SkillService *engine.Service
	Registry     *catalog.Registry

	// Producer, when set, routes submissions through RabbitMQ instead
	// of processing them inline.
	Producer *queue.Producer

	// Notifier, when set, pushes stuck and unlock notices to the coach
	// webhook after inline processing.
	Notifier *coach.Notifier
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		cfg:      cfg.Config,
		router:   http.NewServeMux(),
		skills:   cfg.SkillService,
		registry: cfg.Registry,
		producer: cfg.Producer,
		notifier: cfg.Notifier,
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := recoveryMiddleware(loggingMiddleware(correlationIDMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Config
	s.router.HandleFunc("GET /v1/config", s.handleGetConfig)

	// Topic catalog
	s.router.HandleFunc("GET /v1/topics", s.handleListTopics)
	s.router.HandleFunc("GET /v1/topics/{ref...}", s.handleGetTopic)

	// Submissions
	s.router.HandleFunc("POST /v1/submissions", s.handleCreateSubmission)

	// Per-user skill state
	s.router.HandleFunc("GET /v1/users/{id}/skills", s.handleUserSkills)
	s.router.HandleFunc("GET /v1/users/{id}/progress", s.handleUserProgress)
	s.router.HandleFunc("GET /v1/users/{id}/stuck", s.handleUserStuck)
	s.router.HandleFunc("GET /v1/users/{id}/overview", s.handleUserOverview)
	s.router.HandleFunc("GET /v1/users/{id}/prereq/{topic...}", s.handleUserPrereq)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting attune daemon",
		"addr", s.server.Addr,
		"topics", s.registry.Len(),
		"async", s.producer != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			slog.Warn("failed to close coach notifier", "error", err)
		}
	}

	return s.server.Shutdown(ctx)
}

// Handler is exposed for tests that drive the mux directly.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"version": "0.1.0",
		"storage": s.cfg.Storage.Backend,
		"topics":  s.registry.Len(),
		"async":   s.producer != nil,
		"coach":   s.notifier != nil && s.notifier.Enabled(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Return config without connection strings
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"daemon":          s.cfg.Daemon,
		"storage_backend": s.cfg.Storage.Backend,
		"queue_enabled":   s.cfg.Queue.Enabled,
	})
}

// Topic handlers

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	var topics []domain.Topic
	if layer := r.URL.Query().Get("layer"); layer != "" {
		l := domain.Layer(layer)
		if !l.Valid() {
			s.jsonError(w, http.StatusBadRequest, "unknown layer", nil)
			return
		}
		topics = s.registry.Layer(l)
	} else {
		topics = s.registry.All()
	}

	result := make([]map[string]interface{}, 0, len(topics))
	for _, t := range topics {
		result = append(result, map[string]interface{}{
			"id":            t.ID,
			"slug":          t.Slug,
			"name":          t.Name,
			"layer":         t.Layer,
			"category":      t.Category,
			"prerequisites": t.Prerequisites,
		})
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"topics": result,
	})
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")

	topic, err := s.registry.Resolve(ref)
	if err != nil {
		s.jsonError(w, http.StatusNotFound, "topic not found", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, topic)
}

// Submission handlers

type detectionRequest struct {
	Topic     string   `json:"topic"`
	Positive  bool     `json:"positive,omitempty"`
	Idiomatic bool     `json:"idiomatic,omitempty"`
	Trivial   bool     `json:"trivial,omitempty"`
	Score     *float64 `json:"score,omitempty"`
}

type submissionRequest struct {
	UserID     string             `json:"user_id"`
	Detections []detectionRequest `json:"detections"`
	Async      bool               `json:"async,omitempty"`
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid user_id", err)
		return
	}
	if len(req.Detections) == 0 {
		s.jsonError(w, http.StatusBadRequest, "detections is required", nil)
		return
	}

	detections := make([]engine.Detection, 0, len(req.Detections))
	for _, det := range req.Detections {
		topic, err := s.registry.Resolve(det.Topic)
		if err != nil {
			s.jsonError(w, http.StatusNotFound, fmt.Sprintf("unknown topic %q", det.Topic), err)
			return
		}
		detections = append(detections, engine.Detection{
			TopicID:   topic.ID,
			Positive:  det.Positive,
			Idiomatic: det.Idiomatic,
			Trivial:   det.Trivial,
			Score:     det.Score,
		})
	}

	sub := engine.Submission{
		ID:          uuid.New(),
		UserID:      userID,
		Detections:  detections,
		SubmittedAt: time.Now(),
	}

	// Async path: enqueue and let the consumer group serialize updates.
	if req.Async || (s.producer != nil && s.cfg.Queue.Enabled) {
		if s.producer == nil {
			s.jsonError(w, http.StatusServiceUnavailable, "async submissions not configured", nil)
			return
		}
		if err := s.producer.PublishSubmission(r.Context(), queue.NewSubmissionJob(sub)); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "failed to enqueue submission", err)
			return
		}
		s.jsonResponse(w, http.StatusAccepted, map[string]interface{}{
			"submission_id": sub.ID.String(),
			"queued":        true,
		})
		return
	}

	result, err := s.skills.ProcessSubmission(r.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidScore):
			s.jsonError(w, http.StatusBadRequest, "invalid submission", err)
		case errors.Is(err, domain.ErrUnknownTopic):
			s.jsonError(w, http.StatusNotFound, "unknown topic", err)
		default:
			s.jsonError(w, http.StatusInternalServerError, "failed to process submission", err)
		}
		return
	}

	s.notifyCoach(result)
	s.jsonResponse(w, http.StatusCreated, result)
}

// notifyCoach pushes stuck, unlock and weak-prerequisite notices after
// inline processing. Delivery is fire-and-forget.
func (s *Server) notifyCoach(result *engine.SubmissionResult) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		for _, change := range result.Changes {
			if !change.NewlyStuck {
				continue
			}
			notice := coach.StuckNotice{
				UserID:  result.UserID,
				TopicID: change.TopicID,
				Rating:  change.Rating,
			}
			if topic, ok := s.registry.Topic(change.TopicID); ok {
				notice.TopicName = topic.Name
			}
			if err := s.notifier.NotifyStuck(ctx, notice); err != nil {
				slog.Warn("coach stuck notice failed", "topic", change.TopicID, "error", err)
			}
		}

		for _, layer := range result.Unlocked {
			err := s.notifier.NotifyUnlock(ctx, coach.UnlockNotice{
				UserID:     result.UserID,
				Layer:      layer,
				UnlockedAt: result.ProcessedAt,
			})
			if err != nil {
				slog.Warn("coach unlock notice failed", "layer", layer, "error", err)
			}
		}

		if weak := result.WeakestLink; weak != nil && weak.Severity == domain.SeverityCritical {
			err := s.notifier.NotifyWeakPrerequisite(ctx, coach.PrereqNotice{
				UserID:   result.UserID,
				TopicID:  weak.TopicID,
				Weakest:  weak.TopicID,
				Severity: weak.Severity,
				Reason:   weak.Reason,
			})
			if err != nil {
				slog.Warn("coach prerequisite notice failed", "topic", weak.TopicID, "error", err)
			}
		}
	}()
}

// User skill handlers

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid user id", err)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleUserSkills(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	skills, err := s.skills.UserSkills(r.Context(), userID)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to list skills", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"skills":  skills,
	})
}

func (s *Server) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	report, err := s.skills.Progress(r.Context(), userID)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to evaluate progress", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, report)
}

func (s *Server) handleUserStuck(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	topics, err := s.skills.StuckTopics(r.Context(), userID)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to list stuck topics", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"topics":  topics,
	})
}

func (s *Server) handleUserOverview(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	overview, err := s.skills.Overview(r.Context(), userID)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to build overview", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, overview)
}

func (s *Server) handleUserPrereq(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	topicRef := r.PathValue("topic")

	weak, err := s.skills.WeakestPrerequisite(r.Context(), userID, topicRef)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTopic) || errors.Is(err, domain.ErrNotFound) {
			s.jsonError(w, http.StatusNotFound, "topic not found", err)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to analyze prerequisites", err)
		return
	}

	if weak == nil {
		s.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"user_id": userID,
			"topic":   topicRef,
			"found":   false,
		})
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"topic":   topicRef,
		"found":   true,
		"weakest": map[string]interface{}{
			"topic_id": weak.TopicID,
			"slug":     weak.Slug,
			"name":     weak.Name,
			"severity": weak.Severity,
			"reason":   weak.Reason,
			"rating":   weak.Rating,
			"depth":    weak.Depth,
		},
	})
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
