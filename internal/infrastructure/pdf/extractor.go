package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lpdf "github.com/ledongthuc/pdf"

	"DisclosureMonitor/internal/ports"
)

// ErrExtract marks a filing that could not be downloaded or read.
var ErrExtract = errors.New("pdf extraction failed")

const (
	defaultMaxBytes = 20 << 20
	defaultMaxChars = 100_000
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Options configures the extractor.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	MaxChars int
	Client   *http.Client
	Logger   *slog.Logger
}

// Extractor downloads filings and returns their plain text.
type Extractor struct {
	client   *http.Client
	maxBytes int64
	maxChars int
	logger   *slog.Logger
}

var _ ports.PDFExtractor = (*Extractor)(nil)

func NewExtractor(opts Options) *Extractor {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, maxBytes: maxBytes, maxChars: maxChars, logger: logger}
}

// ExtractText downloads url and returns its text, truncated for the summarizer.
func (e *Extractor) ExtractText(ctx context.Context, url string) (string, error) {
	data, err := e.download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtract, err)
	}

	text, err := extract(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtract, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text layer", ErrExtract)
	}

	e.logger.Debug("pdf extracted", "url", url, "bytes", len(data), "chars", len(text))
	return Truncate(text, e.maxChars), nil
}

func (e *Extractor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/pdf, application/octet-stream, */*")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" &&
		!strings.Contains(ct, "pdf") && !strings.Contains(ct, "octet-stream") {
		e.logger.Warn("unexpected pdf content type", "url", url, "content_type", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("document larger than %d bytes", e.maxBytes)
	}
	return data, nil
}

// extract reads every page's text. The parser panics on some malformed
// files, so panics are turned into errors.
func extract(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n", i)
		sb.WriteString(content)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Truncate cuts text to at most maxChars runes. When a sentence boundary
// falls within the last fifth of the kept text the cut happens there.
func Truncate(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	kept := string(runes[:maxChars])
	if idx := strings.LastIndex(kept, "."); idx >= 0 && len([]rune(kept[:idx])) > maxChars*4/5 {
		kept = kept[:idx+1]
	}
	return kept + "\n\n[Content truncated]"
}
