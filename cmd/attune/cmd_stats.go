package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"
)

// cmdStats shows aggregate skill statistics
func cmdStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	user := fs.String("user", "", "user UUID (default: local identity)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	userID, err := resolveUser(*user)
	if err != nil {
		return err
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'attune start' first)")
	}

	resp, err := http.Get(fmt.Sprintf("%s/v1/users/%s/overview", daemonAddr, userID))
	if err != nil {
		return fmt.Errorf("get overview: %w", err)
	}
	defer resp.Body.Close()

	var overview struct {
		TotalTopics      int                `json:"total_topics"`
		PracticedTopics  int                `json:"practiced_topics"`
		TotalSubmissions int                `json:"total_submissions"`
		AvgRating        float64            `json:"avg_rating"`
		AvgRD            float64            `json:"avg_rd"`
		StuckCount       int                `json:"stuck_count"`
		AtRiskCount      int                `json:"at_risk_count"`
		BandCounts       map[string]int     `json:"band_counts"`
		LayerCoverage    map[string]float64 `json:"layer_coverage"`
		StrongestTopic   string             `json:"strongest_topic"`
		WeakestTopic     string             `json:"weakest_topic"`
		LastPracticedAt  *time.Time         `json:"last_practiced_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Skill Statistics")
	fmt.Println("================")
	fmt.Printf("Topics Practiced:  %d / %d\n", overview.PracticedTopics, overview.TotalTopics)
	fmt.Printf("Total Submissions: %d\n", overview.TotalSubmissions)
	if overview.PracticedTopics > 0 {
		fmt.Printf("Avg Rating:        %.0f ±%.0f\n", overview.AvgRating, overview.AvgRD)
	}
	fmt.Printf("Stuck:             %d (at risk: %d)\n", overview.StuckCount, overview.AtRiskCount)
	if overview.StrongestTopic != "" {
		fmt.Printf("Strongest Topic:   %s\n", overview.StrongestTopic)
	}
	if overview.WeakestTopic != "" {
		fmt.Printf("Weakest Topic:     %s\n", overview.WeakestTopic)
	}
	if overview.LastPracticedAt != nil {
		fmt.Printf("Last Practiced:    %s\n", overview.LastPracticedAt.Format("2006-01-02 15:04"))
	}

	if len(overview.LayerCoverage) > 0 {
		fmt.Println("\nLayer Coverage")
		fmt.Println("--------------")
		for _, layer := range []string{"fundamentals", "intermediate", "patterns"} {
			coverage, ok := overview.LayerCoverage[layer]
			if !ok {
				continue
			}
			bar := renderProgressBar(coverage, 20)
			fmt.Printf("%-14s %s %.0f%%\n", layer, bar, coverage*100)
		}
	}

	if len(overview.BandCounts) > 0 {
		fmt.Println("\nDisplay Bands")
		fmt.Println("-------------")
		for _, band := range []string{"Expert", "Proficient", "Competent", "Developing", "Novice"} {
			count, ok := overview.BandCounts[band]
			if !ok {
				continue
			}
			fmt.Printf("%-12s %d topic(s)\n", band, count)
		}
	}

	return nil
}
