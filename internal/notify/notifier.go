// Package notify renders alerts and hands them to a transport.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

const subjectPrefix = "[Market News] Update: "

// Notifier builds one message per item and sends it exactly once.
type Notifier struct {
	transport ports.Transport
	policy    *bluemonday.Policy
	location  *time.Location
	logger    *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// New returns a notifier that renders timestamps in loc.
func New(transport ports.Transport, loc *time.Location, logger *slog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		transport: transport,
		policy:    bluemonday.UGCPolicy(),
		location:  loc,
		logger:    logger,
	}
}

// Notify renders item and performs a single transport send. It never
// consults or updates dedup state.
func (n *Notifier) Notify(ctx context.Context, item domain.Item) error {
	msg, err := n.Render(item)
	if err != nil {
		return err
	}
	if err := n.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send alert %s: %w", item.Fingerprint, err)
	}
	n.logger.Info("alert sent", "fingerprint", item.Fingerprint, "company", item.Company)
	return nil
}

type view struct {
	Company     string
	Title       string
	Published   string
	Keywords    string
	Summary     *domain.Summary
	Annotations []string
	Description template.HTML
	Financials  *domain.Financials
	Link        string
	IsPDF       bool
}

// Render produces the alert without sending it.
func (n *Notifier) Render(item domain.Item) (domain.Message, error) {
	company := companyName(item)
	link := item.PDFURL
	if link == "" {
		link = item.Link
	}

	v := view{
		Company:     company,
		Title:       item.Title,
		Published:   item.Timestamp().In(n.location).Format("02 Jan 2006 15:04 MST"),
		Keywords:    strings.Join(item.MatchedKeywords, ", "),
		Summary:     item.Summary,
		Annotations: item.Annotations,
		Description: template.HTML(n.policy.Sanitize(item.Description)),
		Financials:  item.Financials,
		Link:        link,
		IsPDF:       item.PDFURL != "",
	}

	var html bytes.Buffer
	if err := alertTemplate.Execute(&html, v); err != nil {
		return domain.Message{}, fmt.Errorf("render alert: %w", err)
	}

	return domain.Message{
		Subject:  subjectPrefix + company,
		HTMLBody: html.String(),
		TextBody: plainText(v),
	}, nil
}

func companyName(item domain.Item) string {
	if c := strings.TrimSpace(item.Company); c != "" {
		return c
	}
	if c := domain.ExtractCompany(item.Title); c != "" {
		return c
	}
	return "Unknown company"
}

func plainText(v view) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\nPublished %s\n", v.Company, v.Title, v.Published)
	if v.Summary != nil {
		fmt.Fprintf(&sb, "\n%s\n", v.Summary.Text)
		for _, kv := range [][2]string{
			{"Order value", v.Summary.OrderValue},
			{"Client", v.Summary.Client},
			{"Timeline", v.Summary.Timeline},
			{"Sector", v.Summary.Sector},
		} {
			if kv[1] != "" {
				fmt.Fprintf(&sb, "%s: %s\n", kv[0], kv[1])
			}
		}
	} else {
		sb.WriteString("\nSummary unavailable")
		if len(v.Annotations) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(v.Annotations, "; "))
		}
		sb.WriteString("\n")
	}
	if f := v.Financials; f != nil {
		fmt.Fprintf(&sb, "\n%s revenue %s, order book %s", f.FiscalYear, f.Revenue, f.OrderBook)
		if f.Ratio != "" {
			fmt.Fprintf(&sb, " (%s)", f.Ratio)
		}
		sb.WriteString("\n")
		if f.HasProvisional() {
			fmt.Fprintf(&sb, "%s provisional revenue %s, order book %s\n", f.ProvisionalYear, f.ProvisionalRevenue, f.ProvisionalOrderBook)
		}
	}
	if v.Link != "" {
		fmt.Fprintf(&sb, "\n%s\n", v.Link)
	}
	return sb.String()
}
