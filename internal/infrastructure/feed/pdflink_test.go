package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"DisclosureMonitor/internal/domain"
)

func TestPDFLocator(t *testing.T) {
	t.Parallel()

	locator := NewPDFLocator()
	cases := []struct {
		name       string
		item       domain.Item
		enclosures []string
		want       string
	}{
		{
			name: "link is a pdf",
			item: domain.Item{Link: "https://example.com/a/FILING.PDF"},
			want: "https://example.com/a/FILING.PDF",
		},
		{
			name:       "enclosure",
			item:       domain.Item{Link: "https://example.com/a"},
			enclosures: []string{"https://cdn.example.com/x.pdf"},
			want:       "https://cdn.example.com/x.pdf",
		},
		{
			name: "relative anchor in description",
			item: domain.Item{
				Link:        "https://example.com/news/item",
				Description: `<p><a href="/img/logo.png">logo</a> <a href="docs/report.pdf?v=2">report</a></p>`,
			},
			want: "https://example.com/news/docs/report.pdf?v=2",
		},
		{
			name: "plain text description",
			item: domain.Item{Link: "https://example.com/a", Description: "see report.pdf"},
			want: "",
		},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, locator.Locate(tc.item, tc.enclosures), tc.name)
	}
}
