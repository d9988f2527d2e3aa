package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type topicInfo struct {
	ID            string   `json:"id"`
	Slug          string   `json:"slug"`
	Name          string   `json:"name"`
	Layer         string   `json:"layer"`
	Category      string   `json:"category"`
	Prerequisites []string `json:"prerequisites"`
}

// cmdTopics manages the topic catalog
func cmdTopics(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Topic commands:

  attune topics list [layer]    List topics (optionally one layer)
  attune topics info <topic>    Show topic details`)
		return nil
	}

	switch args[0] {
	case "list":
		layer := ""
		if len(args) > 1 {
			layer = args[1]
		}
		return cmdTopicsList(layer)
	case "info":
		if len(args) < 2 {
			return fmt.Errorf("topic ID or slug required (e.g., error-handling)")
		}
		return cmdTopicsInfo(args[1])
	default:
		return fmt.Errorf("unknown topics command: %s", args[0])
	}
}

func cmdTopicsList(layer string) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'attune start' first)")
	}

	endpoint := daemonAddr + "/v1/topics"
	if layer != "" {
		endpoint += "?layer=" + url.QueryEscape(layer)
	}

	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("get topics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		Topics []topicInfo `json:"topics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Println("Topic Catalog")
	fmt.Println("=============")

	byLayer := map[string][]topicInfo{}
	for _, t := range result.Topics {
		byLayer[t.Layer] = append(byLayer[t.Layer], t)
	}

	for _, l := range []string{"fundamentals", "intermediate", "patterns"} {
		topics := byLayer[l]
		if len(topics) == 0 {
			continue
		}
		fmt.Printf("\n%s\n%s\n", strings.ToUpper(l), strings.Repeat("-", len(l)))
		for _, t := range topics {
			fmt.Printf("  %-24s %s\n", t.Slug, t.Name)
			if len(t.Prerequisites) > 0 {
				fmt.Printf("  %-24s requires: %s\n", "", strings.Join(t.Prerequisites, ", "))
			}
		}
	}

	return nil
}

func cmdTopicsInfo(ref string) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'attune start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/topics/" + url.PathEscape(ref))
	if err != nil {
		return fmt.Errorf("get topic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("topic not found: %s", ref)
	}

	var topic topicInfo
	if err := json.NewDecoder(resp.Body).Decode(&topic); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("%s (%s)\n", topic.Name, topic.Slug)
	fmt.Printf("  ID:       %s\n", topic.ID)
	fmt.Printf("  Layer:    %s\n", topic.Layer)
	fmt.Printf("  Category: %s\n", topic.Category)
	if len(topic.Prerequisites) > 0 {
		fmt.Printf("  Requires: %s\n", strings.Join(topic.Prerequisites, ", "))
	} else {
		fmt.Println("  Requires: (none)")
	}

	return nil
}
