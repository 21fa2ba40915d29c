package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// ServiceOptions tunes request pacing and retries.
type ServiceOptions struct {
	RequestsPerMinute int
	MaxTries          uint
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Logger            *slog.Logger
}

// Service turns a Generator into the summarizer and financial lookup ports.
type Service struct {
	gen      Generator
	limiter  *rate.Limiter
	maxTries uint
	initial  time.Duration
	max      time.Duration
	logger   *slog.Logger
}

var (
	_ ports.Summarizer      = (*Service)(nil)
	_ ports.FinancialLookup = (*Service)(nil)
)

func NewService(gen Generator, opts ServiceOptions) *Service {
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	maxTries := opts.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 2 * time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		gen:      gen,
		limiter:  rate.NewLimiter(limit, 1),
		maxTries: maxTries,
		initial:  initial,
		max:      maxBackoff,
		logger:   logger,
	}
}

// Summarize asks the model for a structured digest of a filing.
func (s *Service) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Summary{}, fmt.Errorf("%w: no text", ErrSummary)
	}

	reply, err := s.generate(ctx, summaryPrompt(text))
	if err != nil {
		return domain.Summary{}, fmt.Errorf("%w: %w", ErrSummary, err)
	}
	summary, err := parseSummary(reply)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("%w: %w", ErrSummary, err)
	}
	return summary, nil
}

// Lookup asks the model for revenue and order book figures.
func (s *Service) Lookup(ctx context.Context, company string) (domain.Financials, error) {
	if strings.TrimSpace(company) == "" {
		return domain.Financials{}, fmt.Errorf("%w: no company", ErrLookup)
	}

	reply, err := s.generate(ctx, financialPrompt(company))
	if err != nil {
		return domain.Financials{}, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	fin, err := parseFinancials(company, reply)
	if err != nil {
		return domain.Financials{}, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	return fin, nil
}

var errEmptyReply = errors.New("empty reply")

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initial
	bo.MaxInterval = s.max

	attempt := 0
	op := func() (string, error) {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}
		reply, err := s.gen.Generate(ctx, prompt)
		if err != nil {
			if IsPermanent(err) {
				return "", backoff.Permanent(err)
			}
			s.logger.Warn("model request failed", "attempt", attempt, "error", err)
			return "", err
		}
		if strings.TrimSpace(reply) == "" {
			return "", errEmptyReply
		}
		return reply, nil
	}

	return backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(s.maxTries))
}
