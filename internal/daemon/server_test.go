package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/catalog"
	"github.com/attunelabs/attune/internal/config"
	"github.com/attunelabs/attune/internal/engine"
	"github.com/attunelabs/attune/internal/storage/sqlite"
)

// setupTestServer creates a daemon server backed by a temp SQLite store
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "attune.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	registry, err := catalog.LoadDefault()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	logger := slog.New(slog.DiscardHandler)
	service := engine.NewService(sqlite.NewSkillStore(db), registry, nil, logger)

	return NewServer(ServerConfig{
		Config:       config.DefaultLocalConfig(),
		SkillService: service,
		Registry:     registry,
	})
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/health status = %d; want 200", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %v; want healthy", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/status status = %d; want 200", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["storage"] != "sqlite" {
		t.Errorf("storage = %v; want sqlite", body["storage"])
	}
	if body["async"] != false {
		t.Errorf("async = %v; want false without a producer", body["async"])
	}
}

func TestListTopics(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/topics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/topics status = %d; want 200", rec.Code)
	}

	var body struct {
		Topics []map[string]any `json:"topics"`
	}
	decodeBody(t, rec, &body)
	if len(body.Topics) == 0 {
		t.Fatal("no topics returned")
	}

	rec = doRequest(t, s, http.MethodGet, "/v1/topics?layer=patterns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/topics?layer=patterns status = %d; want 200", rec.Code)
	}
	var filtered struct {
		Topics []map[string]any `json:"topics"`
	}
	decodeBody(t, rec, &filtered)
	if len(filtered.Topics) == 0 || len(filtered.Topics) >= len(body.Topics) {
		t.Errorf("patterns filter returned %d of %d topics", len(filtered.Topics), len(body.Topics))
	}

	rec = doRequest(t, s, http.MethodGet, "/v1/topics?layer=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET /v1/topics?layer=bogus status = %d; want 400", rec.Code)
	}
}

func TestGetTopic(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/v1/topics/goroutines", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/topics/goroutines status = %d; want 200", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/v1/topics/no-such-topic", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /v1/topics/no-such-topic status = %d; want 404", rec.Code)
	}
}

func TestCreateSubmission(t *testing.T) {
	s := setupTestServer(t)
	userID := uuid.NewString()

	rec := doRequest(t, s, http.MethodPost, "/v1/submissions", map[string]any{
		"user_id": userID,
		"detections": []map[string]any{
			{"topic": "slices", "positive": true, "idiomatic": true},
			{"topic": "control-flow", "positive": true, "idiomatic": true},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /v1/submissions status = %d; want 201. body: %s", rec.Code, rec.Body.String())
	}

	var result engine.SubmissionResult
	decodeBody(t, rec, &result)
	if len(result.Changes) != 2 {
		t.Fatalf("len(Changes) = %d; want 2", len(result.Changes))
	}
	for _, change := range result.Changes {
		if change.RatingChange <= 0 {
			t.Errorf("topic %s RatingChange = %v; want positive", change.TopicID, change.RatingChange)
		}
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/v1/users/%s/skills", userID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET skills status = %d; want 200", rec.Code)
	}
	var skills struct {
		Skills []engine.SkillReport `json:"skills"`
	}
	decodeBody(t, rec, &skills)
	if len(skills.Skills) != 2 {
		t.Errorf("len(Skills) = %d; want 2", len(skills.Skills))
	}
}

func TestCreateSubmissionValidation(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"bad user id", map[string]any{"user_id": "nope", "detections": []map[string]any{{"topic": "slices"}}}, http.StatusBadRequest},
		{"missing detections", map[string]any{"user_id": uuid.NewString()}, http.StatusBadRequest},
		{"unknown topic", map[string]any{"user_id": uuid.NewString(), "detections": []map[string]any{{"topic": "quantum"}}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/v1/submissions", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d; want %d. body: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAsyncSubmissionWithoutProducer(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/v1/submissions", map[string]any{
		"user_id":    uuid.NewString(),
		"detections": []map[string]any{{"topic": "slices", "positive": true}},
		"async":      true,
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("async without producer status = %d; want 503", rec.Code)
	}
}

func TestUserProgress(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/v1/users/%s/progress", uuid.NewString()), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET progress status = %d; want 200", rec.Code)
	}

	var report engine.ProgressReport
	decodeBody(t, rec, &report)
	if len(report.Layers) != 3 {
		t.Fatalf("len(Layers) = %d; want 3", len(report.Layers))
	}
	if !report.Layers[0].Unlocked {
		t.Error("fundamentals should be unlocked for a new user")
	}
}

func TestUserStuckEmpty(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/v1/users/%s/stuck", uuid.NewString()), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET stuck status = %d; want 200", rec.Code)
	}

	var body struct {
		Topics []engine.StuckReport `json:"topics"`
	}
	decodeBody(t, rec, &body)
	if len(body.Topics) != 0 {
		t.Errorf("len(Topics) = %d; want 0 for a new user", len(body.Topics))
	}
}

func TestUserPrereq(t *testing.T) {
	s := setupTestServer(t)
	userID := uuid.NewString()

	// Root topics have no prerequisites to be weak.
	rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/v1/users/%s/prereq/syntax", userID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET prereq status = %d; want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["found"] != false {
		t.Errorf("found = %v; want false for a root topic", body["found"])
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/v1/users/%s/prereq/no-such-topic", userID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET prereq on unknown topic status = %d; want 404", rec.Code)
	}
}

func TestInvalidUserID(t *testing.T) {
	s := setupTestServer(t)

	for _, path := range []string{
		"/v1/users/abc/skills",
		"/v1/users/abc/progress",
		"/v1/users/abc/stuck",
		"/v1/users/abc/overview",
	} {
		rec := doRequest(t, s, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d; want 400", path, rec.Code)
		}
	}
}
