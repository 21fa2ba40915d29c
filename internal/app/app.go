package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"DisclosureMonitor/internal/config"
	"DisclosureMonitor/internal/filter"
	"DisclosureMonitor/internal/infrastructure/feed"
	"DisclosureMonitor/internal/infrastructure/financial"
	"DisclosureMonitor/internal/infrastructure/httpserver"
	"DisclosureMonitor/internal/infrastructure/llm"
	"DisclosureMonitor/internal/infrastructure/mail"
	"DisclosureMonitor/internal/infrastructure/pdf"
	"DisclosureMonitor/internal/infrastructure/scheduler"
	"DisclosureMonitor/internal/infrastructure/storage"
	"DisclosureMonitor/internal/infrastructure/telegram"
	"DisclosureMonitor/internal/logging"
	"DisclosureMonitor/internal/notify"
	"DisclosureMonitor/internal/ports"
	"DisclosureMonitor/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	stores    *storage.Stores
	cycle     *usecase.Cycle
	scheduler *usecase.Scheduler
	pruner    *usecase.Pruner
	status    *usecase.StatusReader
	server    *httpserver.Server
}

// New opens the stores and builds every collaborator once.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	stores, err := OpenStores(ctx, cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	app, err := build(ctx, cfg, stores, baseLogger)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	return app, nil
}

// OpenStores opens the configured persistence backend.
func OpenStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage.Stores, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		stores, err := storage.OpenPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return stores, nil
	case "memory":
		return storage.NewMemory(), nil
	default:
		bcfg := storage.DefaultBadgerConfig(cfg.Storage.Path)
		bcfg.Logger = logger.With("component", "badger")
		stores, _, err := storage.OpenBadger(bcfg)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return stores, nil
	}
}

func build(ctx context.Context, cfg config.Config, stores *storage.Stores, baseLogger *slog.Logger) (*Application, error) {
	engine, err := buildFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}
	rules := make([]string, 0, len(engine.Rules()))
	for _, r := range engine.Rules() {
		rules = append(rules, r.Name)
	}
	baseLogger.Info("filter rules loaded", "rules", rules, "window", cfg.Filter.DateWindow)

	fetcher := feed.NewRSSFetcher(feed.Options{
		URL:      cfg.Feed.URL,
		Timeout:  cfg.Feed.Timeout,
		Location: cfg.Scheduler.Location(),
		Logger:   baseLogger.With("component", "feed"),
	})

	service, err := buildLLM(ctx, cfg.AI, baseLogger.With("component", "llm"))
	if err != nil {
		return nil, err
	}

	var summarizer ports.Summarizer
	if service != nil {
		summarizer = service
	}
	lookup := buildFinancials(cfg.Financials, service)

	transport, err := buildTransport(cfg.Notifications)
	if err != nil {
		return nil, err
	}

	enricher := usecase.NewEnricher(usecase.EnricherDeps{
		PDF: pdf.NewExtractor(pdf.Options{
			Timeout:  cfg.Enrich.PDFTimeout,
			MaxBytes: cfg.Enrich.MaxPDFBytes,
			MaxChars: cfg.Enrich.MaxChars,
			Logger:   baseLogger.With("component", "pdf"),
		}),
		Summarizer:  summarizer,
		Financials:  lookup,
		Concurrency: cfg.Enrich.Concurrency,
		Logger:      baseLogger.With("component", "enrich"),
	})

	cycle := usecase.NewCycle(usecase.CycleDeps{
		Fetcher:   fetcher,
		Filter:    engine,
		Hashes:    stores.Hashes,
		Articles:  stores.Articles,
		Heartbeat: stores.Heartbeat,
		Enricher:  enricher,
		Notifier:  notify.New(transport, cfg.Scheduler.Location(), baseLogger.With("component", "notify")),
		Logger:    baseLogger.With("component", "cycle"),
	}, usecase.CycleOptions{
		DateWindow:  cfg.Filter.DateWindow,
		MaxLookback: cfg.Scheduler.MaxLookback,
		RetryWindow: cfg.Scheduler.RetryWindow,
		ItemTimeout: cfg.Enrich.ItemTimeout,
	})

	pruner := usecase.NewPruner(stores.Hashes, stores.Articles, cfg.Storage.Retention, nil, baseLogger.With("component", "prune"))

	var pruneDriver ports.Scheduler
	if cfg.Scheduler.PruneInterval > 0 {
		pruneDriver = scheduler.NewIntervalScheduler(cfg.Scheduler.PruneInterval, true)
	}
	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Cycle:           cycle,
		Heartbeat:       stores.Heartbeat,
		CycleDriver:     scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, true),
		HeartbeatDriver: scheduler.NewIntervalScheduler(cfg.Scheduler.HeartbeatInterval, false),
		PruneDriver:     pruneDriver,
		Pruner:          pruner,
		Logger:          baseLogger.With("component", "scheduler"),
	}, usecase.SchedulerOptions{
		SleepThreshold: cfg.Scheduler.SleepThreshold,
		MaxLookback:    cfg.Scheduler.MaxLookback,
	})

	status := usecase.NewStatusReader(stores.Hashes, stores.Heartbeat, sched, nil)

	var server *httpserver.Server
	if cfg.Server.Addr != "" {
		server = httpserver.New(cfg.Server.Addr, status, baseLogger.With("component", "http"))
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		stores:    stores,
		cycle:     cycle,
		scheduler: sched,
		pruner:    pruner,
		status:    status,
		server:    server,
	}, nil
}

func buildFilter(cfg config.FilterConfig) (*filter.Engine, error) {
	rules := make([]filter.Rule, 0, len(cfg.Presets)+1)
	for _, name := range cfg.Presets {
		rule, ok := filter.Preset(name)
		if !ok {
			return nil, fmt.Errorf("unknown filter preset %q", name)
		}
		rules = append(rules, rule)
	}
	if len(cfg.Keywords) > 0 {
		rules = append(rules, filter.Custom(cfg.Keywords))
	}
	return filter.New(rules...), nil
}

func buildLLM(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*llm.Service, error) {
	var gen llm.Generator
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai":
		client, err := llm.NewChatGPTClient(llm.ChatGPTConfig{
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			APIKey:       cfg.APIKey,
			SystemPrompt: cfg.SystemPrompt,
		})
		if err != nil {
			return nil, err
		}
		gen = client
	default:
		client, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		gen = client
	}
	return llm.NewService(gen, llm.ServiceOptions{
		RequestsPerMinute: cfg.RequestsPerMinute,
		MaxTries:          cfg.MaxTries,
		Logger:            logger,
	}), nil
}

func buildFinancials(cfg config.FinancialsConfig, service *llm.Service) ports.FinancialLookup {
	var next ports.FinancialLookup
	switch cfg.Provider {
	case "http":
		next = financial.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	case "llm":
		if service == nil {
			return nil
		}
		next = service
	default:
		return nil
	}
	return financial.NewCachedLookup(next, cfg.CacheSize, cfg.CacheTTL)
}

func buildTransport(cfg config.NotificationConfig) (ports.Transport, error) {
	switch cfg.Transport {
	case "telegram":
		return telegram.NewTransport(telegram.Options{
			APIBase:  cfg.Telegram.APIBase,
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		}), nil
	default:
		sender, err := mail.NewSender(mail.Config{
			Provider:   cfg.Email.Provider,
			Host:       cfg.Email.Host,
			Port:       cfg.Email.Port,
			Username:   cfg.Email.Sender,
			Password:   cfg.Email.Password,
			Recipients: cfg.Email.Recipients,
			Timeout:    cfg.Email.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure smtp: %w", err)
		}
		return sender, nil
	}
}

// Run starts the scheduler and the status server and blocks until ctx is
// cancelled, then waits for the in-flight cycle to finish.
func (a *Application) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() { serverErr <- a.server.Start() }()
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("monitor started",
		"feed", a.cfg.Feed.URL,
		"interval", a.cfg.Scheduler.Interval,
		"storage", a.cfg.Storage.Backend,
		"transport", a.cfg.Notifications.Transport,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("status server: %w", err)
		}
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Enrich.ItemTimeout+30*time.Second)
	defer cancel()

	var errs []error
	errs = append(errs, runErr)
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop status server: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RunOnce executes a single cycle with the given lookback.
func (a *Application) RunOnce(ctx context.Context, lookback time.Duration) (usecase.CycleReport, error) {
	trigger := usecase.TriggerManual
	if lookback > 0 {
		trigger = usecase.TriggerCatchUp
	}
	report, _, err := a.scheduler.Trigger(ctx, usecase.CycleRequest{Trigger: trigger, Lookback: lookback})
	return report, err
}

// Prune applies the retention policy once.
func (a *Application) Prune(ctx context.Context) (usecase.PruneReport, error) {
	return a.pruner.Prune(ctx)
}

// Status reports alert history and liveness.
func (a *Application) Status(ctx context.Context) (usecase.StatusReport, error) {
	return a.status.Status(ctx)
}

// Close releases the stores.
func (a *Application) Close() error {
	return a.stores.Close()
}
