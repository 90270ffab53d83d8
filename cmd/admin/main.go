package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

const defaultAPI = "http://localhost:8080"

type commitRow struct {
	ID        string    `json:"id"`
	Hash      string    `json:"hash"`
	AuthorID  string    `json:"authorId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Archived  bool      `json:"archived"`
}

func main() {
	api := flag.String("api", envDefault("PROMPTFORGE_API", defaultAPI), "Base URL of the promptforge REST API")
	repo := flag.String("repo", "", "Repository id (required)")
	branch := flag.String("branch", "", "Restrict history to one branch")
	limit := flag.Int("limit", 20, "Maximum commits to list")
	dumpJSON := flag.Bool("json", false, "Output JSON instead of table")
	flag.Parse()

	if *repo == "" {
		fmt.Fprintln(os.Stderr, "--repo is required")
		os.Exit(1)
	}

	query := url.Values{}
	if *branch != "" {
		query.Set("branch", *branch)
	}
	if *limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", *limit))
	}
	endpoint := fmt.Sprintf("%s/api/v1/repos/%s/commits?%s", strings.TrimRight(*api, "/"), url.PathEscape(*repo), query.Encode())

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-Author-ID", "admin-cli")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "history query failed: %s\n", resp.Status)
		os.Exit(1)
	}

	var commits []commitRow
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
		os.Exit(1)
	}

	if *dumpJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(commits)
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Commit\tHash\tAuthor\tTimestamp\tMessage\n")
	for _, c := range commits {
		hash := c.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, hash, c.AuthorID, c.Timestamp.Format(time.RFC3339), c.Message)
	}
	_ = tw.Flush()
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
