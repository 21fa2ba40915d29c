package feed

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"DisclosureMonitor/internal/domain"
)

// PDFLocator finds the filing attached to a feed entry.
type PDFLocator struct{}

func NewPDFLocator() *PDFLocator {
	return &PDFLocator{}
}

// Locate returns the first PDF link found in the entry link, its enclosures
// or the anchors of its description HTML. Empty when none is present.
func (l *PDFLocator) Locate(item domain.Item, enclosures []string) string {
	if looksLikePDF(item.Link) {
		return item.Link
	}
	for _, enc := range enclosures {
		if looksLikePDF(enc) {
			return resolve(item.Link, enc)
		}
	}
	return l.fromDescription(item.Link, item.Description)
}

func (l *PDFLocator) fromDescription(base, description string) string {
	if !strings.Contains(description, "<") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if looksLikePDF(href) {
			found = resolve(base, href)
			return false
		}
		return true
	})
	return found
}

func looksLikePDF(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func resolve(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
