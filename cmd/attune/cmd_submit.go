package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
)

// cmdSubmit records one analyzed submission against its topics
func cmdSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	topics := fs.String("t", "", "comma-separated topic IDs or slugs (required)")
	user := fs.String("user", "", "user UUID (default: local identity)")
	pass := fs.Bool("pass", false, "detections passed")
	idiomatic := fs.Bool("idiomatic", false, "passing submission was fully idiomatic")
	fail := fs.Bool("fail", false, "detections failed")
	trivial := fs.Bool("trivial", false, "failure was syntactically trivial (typo-class)")
	score := fs.Float64("score", -1, "override performance score in [0,1]")
	async := fs.Bool("async", false, "enqueue instead of processing inline")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *topics == "" {
		return fmt.Errorf("at least one topic is required (use -t slug1,slug2)")
	}
	if *pass && *fail {
		return fmt.Errorf("--pass and --fail are mutually exclusive")
	}

	userID, err := resolveUser(*user)
	if err != nil {
		return err
	}

	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'attune start' first)")
	}

	// The flags describe one outcome applied to every listed topic; the
	// API itself takes a verdict per topic.
	detections := make([]map[string]interface{}, 0)
	for _, ref := range strings.Split(*topics, ",") {
		det := map[string]interface{}{"topic": strings.TrimSpace(ref)}
		if *pass {
			det["positive"] = true
			det["idiomatic"] = *idiomatic
		}
		if *trivial {
			det["trivial"] = true
		}
		if *score >= 0 {
			det["score"] = *score
		}
		detections = append(detections, det)
	}

	req := map[string]interface{}{
		"user_id":    userID.String(),
		"detections": detections,
	}
	if *async {
		req["async"] = true
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := http.Post(daemonAddr+"/v1/submissions", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		var queued struct {
			SubmissionID string `json:"submission_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		fmt.Printf("Queued submission %s\n", queued.SubmissionID)
		return nil
	}
	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Details != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Details)
		}
		return fmt.Errorf("submission failed with status %d", resp.StatusCode)
	}

	var result struct {
		SubmissionID string `json:"submission_id"`
		Changes      []struct {
			TopicID      string  `json:"topic_id"`
			Score        float64 `json:"score"`
			ErrorType    *string `json:"error_type"`
			Rating       float64 `json:"rating"`
			RatingChange float64 `json:"rating_change"`
			RD           float64 `json:"rd"`
			Band         struct {
				Name  string `json:"Name"`
				Stars int    `json:"Stars"`
			} `json:"band"`
			Stuck      bool `json:"stuck"`
			NewlyStuck bool `json:"newly_stuck"`
		} `json:"changes"`
		WeakestLink *struct {
			Name     string `json:"name"`
			Slug     string `json:"slug"`
			Severity string `json:"severity"`
			Reason   string `json:"reason"`
		} `json:"weakest_prerequisite"`
		Unlocked []string `json:"unlocked_layers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("Submission %s\n", result.SubmissionID)
	fmt.Println()
	for _, c := range result.Changes {
		arrow := "→"
		sign := ""
		if c.RatingChange > 0 {
			sign = "+"
		}
		line := fmt.Sprintf("  %-24s %s %.0f (%s%.1f)  %s %s",
			c.TopicID, arrow, c.Rating, sign, c.RatingChange, renderStars(c.Band.Stars), c.Band.Name)
		if c.ErrorType != nil {
			line += fmt.Sprintf("  [%s]", *c.ErrorType)
		}
		if c.NewlyStuck {
			line += "  ⚠ stuck"
		}
		fmt.Println(line)
	}

	if result.WeakestLink != nil {
		fmt.Println()
		fmt.Printf("Weakest prerequisite: %s (%s) — %s\n",
			result.WeakestLink.Name, result.WeakestLink.Severity, result.WeakestLink.Reason)
	}
	if len(result.Unlocked) > 0 {
		fmt.Println()
		fmt.Printf("🎉 Unlocked: %s\n", strings.Join(result.Unlocked, ", "))
	}

	return nil
}
