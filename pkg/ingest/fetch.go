// Package ingest retrieves raw job postings from a file path or URL and
// normalizes them into a domain.JobRecord ready for structuring.
package ingest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// DefaultTimeout bounds a single fetch, whether from disk or over HTTP.
const DefaultTimeout = 30 * time.Second

// Fetch retrieves a job posting from file or URL and wraps it in a
// domain.JobRecord. input is treated as a URL when it parses with an
// http(s) scheme, otherwise as a file path.
func Fetch(input string) (domain.JobRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return FetchWithContext(ctx, input)
}

// FetchWithContext is Fetch with caller-supplied cancellation.
func FetchWithContext(ctx context.Context, input string) (domain.JobRecord, error) {
	var record domain.JobRecord
	record.JobID = uuid.NewString()

	parsed, urlErr := url.Parse(input)
	if urlErr == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		content, err := fetchFromURL(ctx, input)
		if err != nil {
			return record, errors.Wrapf(err, "failed to fetch job posting from URL: %s", input)
		}
		record.URL = input
		record.RawDescription = content
		return record, nil
	}

	content, err := fetchFromFile(input)
	if err != nil {
		return record, errors.Wrapf(err, "failed to fetch job posting from file: %s", input)
	}
	record.RawDescription = content
	return record, nil
}

func fetchFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file: %s", path)
	}
	content := string(data)
	if content == "" {
		return "", errors.New("file is empty")
	}
	return content, nil
}

func fetchFromURL(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("User-Agent", "tailorcore/1.0")

	client := &http.Client{Timeout: DefaultTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("HTTP request failed with status: %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	content := stripBasicHTML(string(bodyBytes))
	if content == "" {
		return "", errors.New("fetched content is empty after processing")
	}
	return content, nil
}

// stripBasicHTML removes script/style blocks and tags, leaving plain text.
func stripBasicHTML(html string) string {
	text := removeTagAndContent(html, "script")
	text = removeTagAndContent(text, "style")

	inTag := false
	var result strings.Builder
	for _, r := range text {
		switch r {
		case '<':
			inTag = true
			continue
		case '>':
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

func removeTagAndContent(html, tag string) string {
	result := html
	openTag := "<" + tag
	closeTag := "</" + tag + ">"

	for {
		start := strings.Index(result, openTag)
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], closeTag)
		if end == -1 {
			break
		}
		end += start + len(closeTag)
		result = result[:start] + result[end:]
	}

	return result
}
