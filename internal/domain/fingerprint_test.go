package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIgnoresCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := Fingerprint("Acme Ltd  bags   order", "https://example.com/a.pdf", "g1")
	b := Fingerprint(" acme ltd bags order ", "HTTPS://EXAMPLE.COM/A.PDF", "g2")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintUsesGUIDOnlyWithoutLink(t *testing.T) {
	t.Parallel()

	withLink := Fingerprint("title", "https://example.com/x", "guid-1")
	otherGUID := Fingerprint("title", "https://example.com/x", "guid-2")
	assert.Equal(t, withLink, otherGUID)

	noLinkA := Fingerprint("title", "", "guid-1")
	noLinkB := Fingerprint("title", "", "guid-2")
	assert.NotEqual(t, noLinkA, noLinkB)
}

func TestFingerprintDistinguishesTitles(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t,
		Fingerprint("Acme bags order", "https://example.com/x", ""),
		Fingerprint("Acme bags contract", "https://example.com/x", ""),
	)
}

func TestExtractCompany(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title string
		want  string
	}{
		{"Larsen & Toubro Limited has informed the Exchange about award", "Larsen & Toubro Limited"},
		{"KEC International Ltd. bags orders worth Rs 1,000 crore", "KEC International Ltd."},
		{"Bharat Electronics informs about receipt of orders", "Bharat Electronics"},
		{"Tata Power - Award of contract", "Tata Power"},
		{"Infosys | Regulation 30 disclosure", "Infosys"},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractCompany(tc.title), tc.title)
	}
}

func TestExtractCompanyTruncatesLongTitles(t *testing.T) {
	t.Parallel()

	got := ExtractCompany("Announcement under Regulation 30 relating to the allotment of securities")
	assert.LessOrEqual(t, len([]rune(got)), companyMaxLen)
}
