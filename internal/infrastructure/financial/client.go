package financial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// ErrLookup marks a failed call to the financial data service.
var ErrLookup = errors.New("financial lookup failed")

// Client talks to an external financial data service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.FinancialLookup = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	FiscalYear  string `json:"fiscal_year"`
	Revenue     string `json:"revenue"`
	OrderBook   string `json:"order_book"`
	Ratio       string `json:"ratio"`
	Provisional *struct {
		FiscalYear string `json:"fiscal_year"`
		Revenue    string `json:"revenue"`
		OrderBook  string `json:"order_book"`
	} `json:"provisional,omitempty"`
}

// Lookup requests revenue and order book figures for company.
func (c *Client) Lookup(ctx context.Context, company string) (domain.Financials, error) {
	if strings.TrimSpace(company) == "" {
		return domain.Financials{}, fmt.Errorf("%w: no company", ErrLookup)
	}

	var resp lookupResponse
	if err := c.post(ctx, "/financials", map[string]any{"company": company}, &resp); err != nil {
		return domain.Financials{}, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	fin := domain.Financials{
		Company:    company,
		FiscalYear: resp.FiscalYear,
		Revenue:    resp.Revenue,
		OrderBook:  resp.OrderBook,
		Ratio:      resp.Ratio,
	}
	if p := resp.Provisional; p != nil {
		fin.ProvisionalYear = p.FiscalYear
		fin.ProvisionalRevenue = p.Revenue
		fin.ProvisionalOrderBook = p.OrderBook
	}
	if fin.Revenue == "" && fin.OrderBook == "" && !fin.HasProvisional() {
		return domain.Financials{}, fmt.Errorf("%w: empty response", ErrLookup)
	}
	return fin, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
