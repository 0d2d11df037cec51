package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	hostMarker     = "github.com"
	maxSourceFiles = 3
	maxFileChars   = 5000
	maxListingBody = 4 * 1024 * 1024
)

// Placeholder texts returned in place of a bundle.
const (
	NoValidURLMessage      = "No valid GitHub URL provided."
	InvalidURLMessage      = "Invalid GitHub URL format."
	EmptyRepositoryMessage = "Repository appears empty."
)

var (
	repoPattern = regexp.MustCompile(`github\.com[/:]([^/\s?#]+)/([^/\s?#]+)`)

	sourceExtensions = map[string]struct{}{
		"ts": {}, "tsx": {}, "js": {}, "jsx": {}, "py": {}, "java": {},
		"c": {}, "cpp": {}, "html": {}, "css": {}, "json": {}, "md": {},
	}
)

// Status describes how an evidence bundle was produced.
type Status string

const (
	StatusFetched     Status = "fetched"
	StatusEmpty       Status = "empty"
	StatusNoURL       Status = "no_url"
	StatusInvalidURL  Status = "invalid_url"
	StatusUnavailable Status = "unavailable"
)

// Evidence is the textual repository context for one analysis call. Text is
// always set, either to the delimited bundle or to a diagnostic placeholder.
type Evidence struct {
	Owner  string
	Repo   string
	Text   string
	Status Status
}

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

// Key returns the canonical owner/name form.
func (r Repository) Key() string {
	return strings.ToLower(r.Owner + "/" + r.Name)
}

// ParseRepositoryURL extracts owner and repository name from a GitHub URL.
// ok is false when the URL does not mention github.com at all; err is set when
// it does but owner/repo cannot be matched.
func ParseRepositoryURL(raw string) (repo Repository, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(strings.ToLower(raw), hostMarker) {
		return Repository{}, false, nil
	}

	match := repoPattern.FindStringSubmatch(raw)
	if match == nil {
		return Repository{}, true, fmt.Errorf("no owner/repo in %q", raw)
	}

	name := strings.TrimSuffix(match[2], ".git")
	if name == "" {
		return Repository{}, true, fmt.Errorf("no repository name in %q", raw)
	}

	return Repository{Owner: match[1], Name: name}, true, nil
}

// Collector fetches repository contents into an evidence bundle.
type Collector interface {
	Collect(ctx context.Context, repoURL string) Evidence
}

type contentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

type collector struct {
	apiURL string
	client *http.Client
	logger zerolog.Logger
}

// NewCollector builds a collector against the given API base URL.
func NewCollector(apiURL string, timeout time.Duration, logger zerolog.Logger) Collector {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &collector{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "github_collector").Logger(),
	}
}

func (c *collector) Collect(ctx context.Context, repoURL string) Evidence {
	repo, ok, err := ParseRepositoryURL(repoURL)
	if !ok {
		return Evidence{Text: NoValidURLMessage, Status: StatusNoURL}
	}
	if err != nil {
		c.logger.Debug().Err(err).Msg("unparseable repository url")
		return Evidence{Text: InvalidURLMessage, Status: StatusInvalidURL}
	}

	evidence := Evidence{Owner: repo.Owner, Repo: repo.Name}

	items, status, err := c.listRoot(ctx, repo)
	switch {
	case err != nil:
		c.logger.Warn().Err(err).Str("repo", repo.Key()).Msg("repository listing failed")
		evidence.Text = fmt.Sprintf("Error fetching GitHub repository %s/%s: %v", repo.Owner, repo.Name, err)
		evidence.Status = StatusUnavailable
		return evidence
	case status != http.StatusOK:
		c.logger.Warn().Int("status", status).Str("repo", repo.Key()).Msg("repository listing returned non-success status")
		evidence.Text = fmt.Sprintf("Could not fetch GitHub repository %s/%s (Status %d). The repository may be private or deleted.", repo.Owner, repo.Name, status)
		evidence.Status = StatusUnavailable
		return evidence
	}

	var builder strings.Builder
	for _, item := range selectFiles(items) {
		builder.WriteString("--- START OF FILE: ")
		builder.WriteString(item.Name)
		builder.WriteString(" ---\n")
		builder.WriteString(c.download(ctx, item))
		builder.WriteString("\n--- END OF FILE ---\n\n")
	}

	builder.WriteString("--- ROOT DIRECTORY LISTING ---\n")
	if len(items) == 0 {
		builder.WriteString(EmptyRepositoryMessage)
		evidence.Status = StatusEmpty
	} else {
		for _, item := range items {
			builder.WriteString(fmt.Sprintf("- %s (%s)\n", item.Name, item.Type))
		}
		evidence.Status = StatusFetched
	}

	evidence.Text = strings.TrimRight(builder.String(), "\n")
	return evidence
}

func (c *collector) listRoot(ctx context.Context, repo Repository) ([]contentItem, int, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents", c.apiURL, repo.Owner, repo.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var items []contentItem
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxListingBody)).Decode(&items); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode listing: %w", err)
	}

	return items, resp.StatusCode, nil
}

func (c *collector) download(ctx context.Context, item contentItem) string {
	marker := fmt.Sprintf("[Error downloading file: %s]", item.Name)
	if item.DownloadURL == "" {
		return marker
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, nil)
	if err != nil {
		return marker
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("file", item.Name).Msg("file download failed")
		return marker
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("file", item.Name).Msg("file download returned non-success status")
		return marker
	}

	// Read a little more than needed so multi-byte runes at the cut are intact.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileChars*4))
	if err != nil {
		return marker
	}

	return truncate(string(body), maxFileChars)
}

// selectFiles picks the README followed by up to three whitelisted sources.
func selectFiles(items []contentItem) []contentItem {
	selected := make([]contentItem, 0, maxSourceFiles+1)
	for _, item := range items {
		if item.Type == "file" && isReadme(item.Name) {
			selected = append(selected, item)
			break
		}
	}

	sources := 0
	for _, item := range items {
		if sources == maxSourceFiles {
			break
		}
		if item.Type != "file" || isReadme(item.Name) || !isSourceFile(item.Name) {
			continue
		}
		selected = append(selected, item)
		sources++
	}

	return selected
}

func isReadme(name string) bool {
	return strings.Contains(strings.ToLower(name), "readme")
}

func isSourceFile(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	_, ok := sourceExtensions[ext]
	return ok
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
