package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// cmdSkills shows tracked skills with display bands
func cmdSkills(args []string) error {
	fs := flag.NewFlagSet("skills", flag.ContinueOnError)
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

	resp, err := http.Get(fmt.Sprintf("%s/v1/users/%s/skills", daemonAddr, userID))
	if err != nil {
		return fmt.Errorf("get skills: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Skills []struct {
			TopicID          string  `json:"topic_id"`
			TopicName        string  `json:"topic_name"`
			Layer            string  `json:"layer"`
			Rating           float64 `json:"rating"`
			RD               float64 `json:"rd"`
			Volatility       float64 `json:"volatility"`
			TimesEncountered int     `json:"times_encountered"`
			Band             struct {
				Name  string `json:"Name"`
				Stars int    `json:"Stars"`
			} `json:"band"`
			Stuck bool `json:"stuck"`
		} `json:"skills"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Tracked Skills")
	fmt.Println("==============")

	if len(result.Skills) == 0 {
		fmt.Println("No skills tracked yet. Submit some code!")
		return nil
	}

	for _, sk := range result.Skills {
		name := sk.TopicName
		if name == "" {
			name = sk.TopicID
		}
		line := fmt.Sprintf("  %-24s %4.0f ±%-3.0f  %s %-10s (%d attempts)",
			name, sk.Rating, sk.RD, renderStars(sk.Band.Stars), sk.Band.Name, sk.TimesEncountered)
		if sk.Stuck {
			line += "  ⚠ stuck"
		}
		fmt.Println(line)
	}

	return nil
}

// cmdProgress shows layer unlock progress
func cmdProgress(args []string) error {
	fs := flag.NewFlagSet("progress", flag.ContinueOnError)
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

	resp, err := http.Get(fmt.Sprintf("%s/v1/users/%s/progress", daemonAddr, userID))
	if err != nil {
		return fmt.Errorf("get progress: %w", err)
	}
	defer resp.Body.Close()

	type criterion struct {
		Current  float64 `json:"Current"`
		Required float64 `json:"Required"`
		Met      bool    `json:"Met"`
	}
	var result struct {
		Layers []struct {
			Layer           string     `json:"Layer"`
			Coverage        criterion  `json:"Coverage"`
			AvgRating       criterion  `json:"AvgRating"`
			AvgRD           criterion  `json:"AvgRD"`
			Submissions     criterion  `json:"Submissions"`
			Recency         criterion  `json:"Recency"`
			OverallProgress float64    `json:"OverallProgress"`
			AllCriteriaMet  bool       `json:"AllCriteriaMet"`
			Unlocked        bool       `json:"Unlocked"`
			UnlockedAt      *time.Time `json:"UnlockedAt"`
		} `json:"layers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Layer Progress")
	fmt.Println("==============")

	check := func(met bool) string {
		if met {
			return "✓"
		}
		return "✗"
	}

	for _, l := range result.Layers {
		state := "locked"
		if l.Unlocked {
			state = "unlocked"
			if l.UnlockedAt != nil {
				state += " " + l.UnlockedAt.Format("2006-01-02")
			}
		}
		fmt.Printf("\n%s (%s)\n", strings.ToUpper(l.Layer), state)
		if l.Layer == "fundamentals" {
			continue
		}
		bar := renderProgressBar(l.OverallProgress, 20)
		fmt.Printf("  %s %.0f%%\n", bar, l.OverallProgress*100)
		fmt.Printf("  %s coverage     %.0f%% of %.0f%%\n", check(l.Coverage.Met), l.Coverage.Current*100, l.Coverage.Required*100)
		fmt.Printf("  %s avg rating   %.0f / %.0f\n", check(l.AvgRating.Met), l.AvgRating.Current, l.AvgRating.Required)
		fmt.Printf("  %s avg rd       %.0f (max %.0f)\n", check(l.AvgRD.Met), l.AvgRD.Current, l.AvgRD.Required)
		fmt.Printf("  %s submissions  %.0f / %.0f\n", check(l.Submissions.Met), l.Submissions.Current, l.Submissions.Required)
		fmt.Printf("  %s recency      %.0f days (max %.0f)\n", check(l.Recency.Met), l.Recency.Current, l.Recency.Required)
	}

	return nil
}

// cmdStuck shows stuck and at-risk topics
func cmdStuck(args []string) error {
	fs := flag.NewFlagSet("stuck", flag.ContinueOnError)
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

	resp, err := http.Get(fmt.Sprintf("%s/v1/users/%s/stuck", daemonAddr, userID))
	if err != nil {
		return fmt.Errorf("get stuck topics: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Topics []struct {
			TopicID   string `json:"topic_id"`
			TopicName string `json:"topic_name"`
			Status    struct {
				CriteriaMet int  `json:"CriteriaMet"`
				Stuck       bool `json:"Stuck"`
				AtRisk      bool `json:"AtRisk"`
			} `json:"status"`
			StuckSince *time.Time `json:"stuck_since"`
		} `json:"topics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Stuck Topics")
	fmt.Println("============")

	if len(result.Topics) == 0 {
		fmt.Println("Nothing stuck. Keep going!")
		return nil
	}

	for _, t := range result.Topics {
		name := t.TopicName
		if name == "" {
			name = t.TopicID
		}
		switch {
		case t.Status.Stuck:
			since := ""
			if t.StuckSince != nil {
				since = " since " + t.StuckSince.Format("2006-01-02")
			}
			fmt.Printf("  ⚠ %-24s stuck%s (%d/4 criteria)\n", name, since, t.Status.CriteriaMet)
		case t.Status.AtRisk:
			fmt.Printf("  ! %-24s at risk (%d/4 criteria)\n", name, t.Status.CriteriaMet)
		}
	}

	return nil
}

// cmdPrereq finds the weakest prerequisite below a topic
func cmdPrereq(args []string) error {
	fs := flag.NewFlagSet("prereq", flag.ContinueOnError)
	user := fs.String("user", "", "user UUID (default: local identity)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("topic ID or slug required (e.g., attune prereq interfaces)")
	}
	topic := fs.Arg(0)

	userID, err := resolveUser(*user)
	if err != nil {
		return err
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'attune start' first)")
	}

	resp, err := http.Get(fmt.Sprintf("%s/v1/users/%s/prereq/%s", daemonAddr, userID, url.PathEscape(topic)))
	if err != nil {
		return fmt.Errorf("get prerequisite analysis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("topic not found: %s", topic)
	}

	var result struct {
		Found   bool `json:"found"`
		Weakest struct {
			TopicID  string  `json:"topic_id"`
			Slug     string  `json:"slug"`
			Name     string  `json:"name"`
			Severity string  `json:"severity"`
			Reason   string  `json:"reason"`
			Rating   float64 `json:"rating"`
			Depth    int     `json:"depth"`
		} `json:"weakest"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if !result.Found {
		fmt.Printf("No weak prerequisite below %s — focus on the topic itself.\n", topic)
		return nil
	}

	w := result.Weakest
	fmt.Printf("Weakest prerequisite below %s:\n", topic)
	fmt.Printf("  %s (%s)\n", w.Name, w.Slug)
	fmt.Printf("  Severity: %s\n", w.Severity)
	fmt.Printf("  Reason:   %s\n", w.Reason)
	fmt.Printf("  Rating:   %.0f\n", w.Rating)
	fmt.Printf("  Depth:    %d edge(s) below the target\n", w.Depth)

	return nil
}
