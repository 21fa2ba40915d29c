package pdf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTextDownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, err := NewExtractor(Options{}).ExtractText(context.Background(), srv.URL+"/missing.pdf")
	assert.ErrorIs(t, err, ErrExtract)
	assert.ErrorContains(t, err, "404")
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4\nthis is not really a pdf"))
	}))
	defer srv.Close()

	_, err := NewExtractor(Options{}).ExtractText(context.Background(), srv.URL+"/broken.pdf")
	assert.ErrorIs(t, err, ErrExtract)
}

func TestExtractTextRejectsOversizedDocuments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := NewExtractor(Options{MaxBytes: 1024}).ExtractText(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrExtract)
	assert.ErrorContains(t, err, "larger than")
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 100))

	sentence := strings.Repeat("a", 90) + ". " + strings.Repeat("b", 20)
	got := Truncate(sentence, 100)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 90)+"."))
	assert.True(t, strings.HasSuffix(got, "[Content truncated]"))

	noBoundary := strings.Repeat("c", 200)
	got = Truncate(noBoundary, 100)
	assert.Equal(t, strings.Repeat("c", 100)+"\n\n[Content truncated]", got)

	early := "x. " + strings.Repeat("d", 200)
	got = Truncate(early, 100)
	assert.Equal(t, early[:100]+"\n\n[Content truncated]", got)
}
