package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeKeepsStatusOnRefetch(t *testing.T) {
	t.Parallel()

	first := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	existing := Item{
		Fingerprint: "fp",
		Title:       "Acme bags order",
		Status:      StatusNotified,
		Summary:     &Summary{Text: "summary"},
		EnrichedAt:  first,
		FirstSeenAt: first,
	}
	incoming := Item{
		Fingerprint: "fp",
		Title:       "Acme bags order (revised)",
		Description: "new description",
		Status:      StatusFetched,
		FirstSeenAt: first.Add(time.Hour),
	}

	merged := Merge(existing, incoming)

	assert.Equal(t, StatusNotified, merged.Status)
	assert.Equal(t, "Acme bags order (revised)", merged.Title)
	assert.Equal(t, "new description", merged.Description)
	assert.Equal(t, first, merged.FirstSeenAt)
	assert.Equal(t, "summary", merged.Summary.Text)
}

func TestMergeStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		existing Status
		incoming Status
		want     Status
	}{
		{"", StatusFetched, StatusFetched},
		{StatusFetched, StatusMatched, StatusMatched},
		{StatusFailed, StatusMatched, StatusMatched},
		{StatusFailed, StatusFetched, StatusFailed},
		{StatusEnriched, StatusMatched, StatusEnriched},
		{StatusNotified, StatusMatched, StatusNotified},
		{StatusMatched, StatusEnriched, StatusEnriched},
		{StatusEnriched, StatusFailed, StatusFailed},
		{StatusFailed, StatusNotified, StatusNotified},
	}

	for _, tc := range cases {
		got := Merge(Item{Status: tc.existing}, Item{Status: tc.incoming}).Status
		assert.Equal(t, tc.want, got, "%s <- %s", tc.existing, tc.incoming)
	}
}

func TestMergeReplacesEnrichmentWhenIncomingEnriched(t *testing.T) {
	t.Parallel()

	now := time.Now()
	existing := Item{Annotations: []string{"summary_failed"}, EnrichedAt: now.Add(-time.Hour)}
	incoming := Item{Summary: &Summary{Text: "ok"}, EnrichedAt: now, Status: StatusEnriched}

	merged := Merge(existing, incoming)

	assert.Empty(t, merged.Annotations)
	assert.Equal(t, "ok", merged.Summary.Text)
	assert.Equal(t, now, merged.EnrichedAt)
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusFetched.Unprocessed())
	assert.True(t, StatusMatched.Unprocessed())
	assert.False(t, StatusFailed.Unprocessed())
	assert.False(t, Status("bogus").Valid())
	assert.True(t, StatusNotified.Valid())
}

func TestNewHashRecordTruncatesTitle(t *testing.T) {
	t.Parallel()

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	rec := NewHashRecord(Item{Fingerprint: "fp", Title: string(long)}, time.Unix(0, 0))

	assert.Len(t, rec.Title, 200)
	assert.Equal(t, "fp", rec.Fingerprint)
}
