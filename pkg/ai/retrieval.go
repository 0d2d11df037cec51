package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/microcosm-cc/bluemonday"
	openai "github.com/sashabaranov/go-openai"
)

const (
	fetchURLToolName = "fetch_url"
	// MaxRetrievedChars bounds the text handed back to the model per fetch.
	MaxRetrievedChars = 20000
	maxRetrievedBytes = 2 * 1024 * 1024
)

var collapseBlankLines = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

// ErrBlockedAddress is returned when a link resolves to a loopback, private,
// link-local, multicast or unspecified address.
var ErrBlockedAddress = errors.New("link resolves to a non-public address")

// LinkFetcher retrieves the readable text behind an external link.
type LinkFetcher interface {
	Fetch(ctx context.Context, target string) (string, error)
}

// HTTPLinkFetcher downloads a link over HTTP and strips markup.
type HTTPLinkFetcher struct {
	client    *http.Client
	sanitizer *bluemonday.Policy
}

// LinkFetcherOption adjusts an HTTPLinkFetcher.
type LinkFetcherOption func(*linkFetcherOptions)

type linkFetcherOptions struct {
	allowPrivate bool
}

// AllowPrivateNetworks lifts the public-address restriction. Only meant for
// tests against local servers.
func AllowPrivateNetworks() LinkFetcherOption {
	return func(o *linkFetcherOptions) { o.allowPrivate = true }
}

// NewHTTPLinkFetcher builds a fetcher with the given request timeout. Every
// connection, including redirects, is checked after DNS resolution and refused
// unless the peer address is public.
func NewHTTPLinkFetcher(timeout time.Duration, opts ...LinkFetcherOption) *HTTPLinkFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var options linkFetcherOptions
	for _, opt := range opts {
		opt(&options)
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if !options.allowPrivate {
		dialer.Control = publicAddressOnly
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &HTTPLinkFetcher{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// publicAddressOnly runs after resolution, so rebinding a name between checks
// does not help.
func publicAddressOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!ip.IsUnspecified()
}

// Fetch performs a GET request and returns at most MaxRetrievedChars of text.
func (f *HTTPLinkFetcher) Fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "gema-grading-assistant")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("link returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRetrievedBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read link body: %w", err)
	}

	text := string(body)
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		text = html.UnescapeString(f.sanitizer.Sanitize(text))
		text = collapseBlankLines.ReplaceAllString(text, "\n\n")
	}

	return truncateRunes(strings.TrimSpace(text), MaxRetrievedChars), nil
}

func fetchURLTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        fetchURLToolName,
			Description: "Retrieve the readable text content of a public web page or document link supplied by the student.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "Absolute http(s) URL to retrieve."}
				},
				"required": ["url"]
			}`),
		},
	}
}

func parseFetchURLArguments(arguments string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}

	parsed, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("only http and https links can be retrieved")
	}

	return parsed.String(), nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
