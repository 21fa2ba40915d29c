package llm

import (
	"errors"
	"fmt"
	"strings"

	"DisclosureMonitor/internal/domain"
)

const summaryPromptTemplate = `Read the stock exchange filing below and answer in exactly this format, one field per line. Use N/A when the filing does not say.

ORDER_VALUE: <value of any new order or contract>
CLIENT: <customer or awarding authority>
TIMELINE: <execution period>
SECTOR: <industry sector>
SUMMARY: <one line description of the report; if the company accepted a new order, mention it specifically>

Filing text:
%s`

const financialPromptTemplate = `Find the financial figures for the Indian listed company %q.
1) Audited revenue and unexecuted order book for the last completed financial year.
2) Provisional or unaudited revenue and order book for the current financial year, if published.

Answer with exactly these two lines, values in rupees crore, N/A when unknown:
AUDITED: <fiscal year> | <revenue> | <order book> | <order book to revenue ratio>
PROVISIONAL: <fiscal year> | <revenue> | <order book>`

func summaryPrompt(text string) string {
	return fmt.Sprintf(summaryPromptTemplate, text)
}

func financialPrompt(company string) string {
	return fmt.Sprintf(financialPromptTemplate, company)
}

// parseSummary reads the KEY: value answer. A reply without the expected
// keys becomes a free-text summary.
func parseSummary(reply string) (domain.Summary, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return domain.Summary{}, errors.New("empty reply")
	}

	fields := parseFields(reply)
	summary := domain.Summary{
		OrderValue: fields["ORDER_VALUE"],
		Client:     fields["CLIENT"],
		Timeline:   fields["TIMELINE"],
		Sector:     fields["SECTOR"],
		Text:       fields["SUMMARY"],
	}
	if summary.Text == "" {
		summary.Text = reply
	}
	return summary, nil
}

func parseFinancials(company, reply string) (domain.Financials, error) {
	fields := parseFields(reply)
	fin := domain.Financials{Company: company}

	audited, hasAudited := fields["AUDITED"]
	if hasAudited {
		cols := splitColumns(audited, 4)
		fin.FiscalYear, fin.Revenue, fin.OrderBook, fin.Ratio = cols[0], cols[1], cols[2], cols[3]
	}
	if provisional, ok := fields["PROVISIONAL"]; ok {
		cols := splitColumns(provisional, 3)
		fin.ProvisionalYear, fin.ProvisionalRevenue, fin.ProvisionalOrderBook = cols[0], cols[1], cols[2]
	}

	if fin.Revenue == "" && fin.OrderBook == "" && !fin.HasProvisional() {
		return domain.Financials{}, errors.New("no figures in reply")
	}
	if fin.Ratio == "" && fin.Revenue != "" && fin.OrderBook != "" {
		fin.Ratio = ratio(fin.OrderBook, fin.Revenue)
	}
	return fin, nil
}

// parseFields collects "KEY: value" lines; N/A values are dropped.
func parseFields(reply string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*-"))
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(strings.Trim(key, "* ")))
		key = strings.ReplaceAll(key, " ", "_")
		value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), "*"))
		if isNA(value) {
			value = ""
		}
		if _, seen := fields[key]; !seen {
			fields[key] = value
		}
	}
	return fields
}

func splitColumns(value string, n int) []string {
	cols := make([]string, n)
	for i, part := range strings.SplitN(value, "|", n) {
		part = strings.TrimSpace(part)
		if !isNA(part) {
			cols[i] = part
		}
	}
	return cols
}

func isNA(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "N/A", "NA", "UNKNOWN", "-":
		return true
	}
	return false
}

func ratio(orderBook, revenue string) string {
	var ob, rev float64
	if _, err := fmt.Sscanf(strings.ReplaceAll(orderBook, ",", ""), "%g", &ob); err != nil {
		return ""
	}
	if _, err := fmt.Sscanf(strings.ReplaceAll(revenue, ",", ""), "%g", &rev); err != nil || rev == 0 {
		return ""
	}
	return fmt.Sprintf("%.1fx", ob/rev)
}
