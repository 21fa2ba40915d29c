package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"DisclosureMonitor/internal/domain"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// testClock starts at testNow and moves only when advanced.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testNow}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newItem(title, link string, age time.Duration) domain.Item {
	return domain.Item{
		Fingerprint: domain.Fingerprint(title, link, ""),
		Title:       title,
		Link:        link,
		Company:     domain.ExtractCompany(title),
		PDFURL:      link + ".pdf",
		PublishedAt: testNow.Add(-age),
		Status:      domain.StatusFetched,
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	items []domain.Item
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context) ([]domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeFetcher) set(items ...domain.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

type recordingNotifier struct {
	mu       sync.Mutex
	sent     []domain.Item
	failures map[string]int
}

func (n *recordingNotifier) Notify(_ context.Context, item domain.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures[item.Fingerprint] > 0 {
		n.failures[item.Fingerprint]--
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, item)
	return nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, it := range n.sent {
		out = append(out, it.Title)
	}
	return out
}

func (n *recordingNotifier) failNext(fingerprint string, times int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures == nil {
		n.failures = make(map[string]int)
	}
	n.failures[fingerprint] = times
}

type fakeExtractor struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeExtractor) ExtractText(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "text of " + url, nil
}

func (f *fakeExtractor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSummarizer struct {
	err error
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (domain.Summary, error) {
	if f.err != nil {
		return domain.Summary{}, f.err
	}
	return domain.Summary{Text: "summary: " + text, OrderValue: "Rs 100 crore"}, nil
}

type fakeFinancials struct {
	err error
}

func (f *fakeFinancials) Lookup(_ context.Context, company string) (domain.Financials, error) {
	if f.err != nil {
		return domain.Financials{}, f.err
	}
	return domain.Financials{Company: company, FiscalYear: "FY25", Revenue: "1,000"}, nil
}

type failingHashStore struct {
	err error
}

func (f failingHashStore) Contains(context.Context, string) (bool, error) { return false, f.err }
func (f failingHashStore) Mark(context.Context, domain.HashRecord) error  { return f.err }
func (f failingHashStore) Prune(context.Context, time.Time) (int, error)  { return 0, f.err }
func (f failingHashStore) Stats(context.Context, time.Time) (domain.HashStats, error) {
	return domain.HashStats{}, f.err
}

// cancellingNotifier cancels the cycle context after its first send.
type cancellingNotifier struct {
	next   *recordingNotifier
	cancel context.CancelFunc
}

func (n *cancellingNotifier) Notify(ctx context.Context, item domain.Item) error {
	defer n.cancel()
	return n.next.Notify(ctx, item)
}

type panickingRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *panickingRunner) Run(_ context.Context, req CycleRequest) (CycleReport, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		panic("cycle exploded")
	}
	return CycleReport{Trigger: req.Trigger}, nil
}

type recordingRunner struct {
	mu      sync.Mutex
	reqs    []CycleRequest
	started chan struct{}
	release chan struct{}
}

func (r *recordingRunner) Run(_ context.Context, req CycleRequest) (CycleReport, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return CycleReport{ID: string(req.Trigger), Trigger: req.Trigger}, nil
}

func (r *recordingRunner) requests() []CycleRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CycleRequest, len(r.reqs))
	copy(out, r.reqs)
	return out
}

type manualDriver struct {
	mu  sync.Mutex
	job func(time.Time)
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error { return nil }

func (d *manualDriver) fire() {
	d.mu.Lock()
	job := d.job
	d.mu.Unlock()
	job(testNow)
}
