// Package ingest bulk-loads QA entries from a JSON file or URL.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/metrics"
	"shaneshark.com/portfolio/internal/qa"
	"shaneshark.com/portfolio/internal/store"
)

// MaxBundleBytes caps how much of a source is read
const MaxBundleBytes = 32 << 20

const progressEvery = 100

// Creator stores one validated entry. *qa.Service satisfies it.
type Creator interface {
	Create(ctx context.Context, req qa.CreateRequest) (store.ID, error)
}

// Bundle is the import file format. A bare JSON array of entries is accepted too.
type Bundle struct {
	Entries []qa.CreateRequest `json:"entries"`
}

// Failure describes one entry that was not stored
type Failure struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Reason   string `json:"reason"`
}

// Report summarises an import
type Report struct {
	Total    int           `json:"total"`
	Stored   int           `json:"stored"`
	Failures []Failure     `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Importer reads bundles and hands each entry to a Creator
type Importer struct {
	httpClient *http.Client
	creator    Creator
}

// NewImporter creates an importer whose remote fetches time out after timeout
func NewImporter(creator Creator, timeout time.Duration) *Importer {
	return &Importer{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		creator: creator,
	}
}

// Import loads source, a file path or an http(s) URL, and stores every valid
// entry. Invalid entries are reported and skipped.
func (im *Importer) Import(ctx context.Context, source string) (*Report, error) {
	startTime := time.Now()

	bundle, err := im.fetch(ctx, source)
	if err != nil {
		metrics.RecordImport(startTime, 0, 0)
		return nil, err
	}

	report := &Report{Total: len(bundle.Entries)}
	log.Info().Str("source", source).Int("count", report.Total).Msg("Parsed QA bundle")

	for i, entry := range bundle.Entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if _, err := im.creator.Create(ctx, entry); err != nil {
			log.Error().
				Err(err).
				Int("index", i).
				Str("question", entry.Question).
				Msg("Failed to store QA entry")
			report.Failures = append(report.Failures, Failure{Index: i, Question: entry.Question, Reason: err.Error()})
			continue
		}
		report.Stored++

		if (i+1)%progressEvery == 0 {
			log.Info().
				Int("processed", i+1).
				Int("total", report.Total).
				Msg("Progress update")
		}
	}

	report.Duration = time.Since(startTime)
	metrics.RecordImport(startTime, report.Stored, len(report.Failures))

	log.Info().
		Str("source", source).
		Int("total", report.Total).
		Int("stored", report.Stored).
		Int("failed", len(report.Failures)).
		Msg("Completed import")

	return report, nil
}

func (im *Importer) fetch(ctx context.Context, source string) (*Bundle, error) {
	var (
		body []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		body, err = im.fetchURL(ctx, source)
	} else {
		body, err = readFile(source)
	}
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBundleBytes {
		return nil, fmt.Errorf("bundle %s exceeds %d bytes", source, MaxBundleBytes)
	}
	return parseBundle(body)
}

func (im *Importer) fetchURL(ctx context.Context, url string) ([]byte, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := im.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamCall("import", startTime, 0)
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	metrics.RecordUpstreamCall("import", startTime, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("import source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBundleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxBundleBytes+1))
}

func parseBundle(body []byte) (*Bundle, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var entries []qa.CreateRequest
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse QA bundle: %w", err)
		}
		return &Bundle{Entries: entries}, nil
	}

	var bundle Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse QA bundle: %w", err)
	}
	return &bundle, nil
}
