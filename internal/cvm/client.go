// Package cvm talks to the CVM open-data portal: it discovers which monthly
// CDA archives exist and downloads their compressed content.
package cvm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"cdacli/internal/config"
)

// ErrNoArchives is returned when the directory listing contains no
// recognizable archive filenames.
var ErrNoArchives = errors.New("no CDA archives found in directory listing")

// StatusError reports a non-2xx response from the portal.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// Client downloads archive listings and monthly archives from the CVM portal.
type Client struct {
	baseURL     string
	filePrefix  string
	userAgent   string
	listClient  *http.Client
	fetchClient *http.Client
	logger      *slog.Logger

	periodPattern *regexp.Regexp
}

// NewClient creates a client for the configured CDA dataset endpoint.
func NewClient(cfg config.CVMConfig, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	listTimeout := cfg.ListTimeout
	if listTimeout <= 0 {
		listTimeout = 60 * time.Second
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 4 * time.Minute
	}

	return &Client{
		baseURL:       base,
		filePrefix:    cfg.FilePrefix,
		userAgent:     cfg.UserAgent,
		listClient:    &http.Client{Timeout: listTimeout},
		fetchClient:   &http.Client{Timeout: fetchTimeout},
		logger:        logger.With(slog.String("component", "cvm_client")),
		periodPattern: regexp.MustCompile(regexp.QuoteMeta(cfg.FilePrefix) + `(\d{6})\.zip`),
	}
}

// ArchiveURL builds the download address for one monthly archive.
func (c *Client) ArchiveURL(period string) string {
	return fmt.Sprintf("%s%s%s.zip", c.baseURL, c.filePrefix, period)
}

// ListAvailable fetches the dataset directory listing and returns every
// distinct YYYYMM period token found in archive filenames, sorted descending
// (most recent first). Returns ErrNoArchives when the listing contains none.
func (c *Client) ListAvailable(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build listing request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.listClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch directory listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: c.baseURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory listing: %w", err)
	}

	seen := make(map[string]struct{})
	var periods []string
	for _, m := range c.periodPattern.FindAllStringSubmatch(string(body), -1) {
		token := m[1]
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		periods = append(periods, token)
	}

	if len(periods) == 0 {
		return nil, ErrNoArchives
	}

	// Lexicographic order equals chronological order for YYYYMM tokens.
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))

	c.logger.DebugContext(ctx, "archive listing fetched",
		slog.Int("periods", len(periods)),
		slog.String("latest", periods[0]))

	return periods, nil
}

// DiscoverLatest returns the most recent period and its download address.
func (c *Client) DiscoverLatest(ctx context.Context) (string, string, error) {
	periods, err := c.ListAvailable(ctx)
	if err != nil {
		return "", "", err
	}
	latest := periods[0]
	return latest, c.ArchiveURL(latest), nil
}

// Fetch downloads one monthly archive. Archives run to hundreds of megabytes,
// so the request carries its own generous timeout independent of the listing
// timeout. There is no retry: a failure here aborts the period's scan.
func (c *Client) Fetch(ctx context.Context, period string) (*Archive, error) {
	url := c.ArchiveURL(period)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build archive request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.InfoContext(ctx, "downloading archive",
		slog.String("period", period),
		slog.String("url", url))

	resp, err := c.fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archive %s: %w", period, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", period, err)
	}

	c.logger.InfoContext(ctx, "archive downloaded",
		slog.String("period", period),
		slog.Int("bytes", len(data)))

	return NewArchive(period, data), nil
}
