package domain

import (
	"regexp"
	"strings"
)

var (
	companyLimited = regexp.MustCompile(`^(.+?\s+Limited)\b`)
	companyLtd     = regexp.MustCompile(`^(.+?\s+Ltd\.?)(?:\s|$)`)
	companyStops   = []string{" has informed", " informs", " - ", "|"}
)

const companyMaxLen = 50

// ExtractCompany guesses the announcing company from a disclosure title.
func ExtractCompany(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}

	if m := companyLimited.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := companyLtd.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}

	lower := strings.ToLower(title)
	for _, stop := range companyStops {
		if idx := strings.Index(lower, stop); idx > 0 {
			return strings.TrimSpace(title[:idx])
		}
	}

	runes := []rune(title)
	if len(runes) > companyMaxLen {
		return strings.TrimSpace(string(runes[:companyMaxLen]))
	}
	return title
}
