package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"auto_reddit_speakout_poster/flair"
	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/logging"
	"auto_reddit_speakout_poster/publisher"
	"auto_reddit_speakout_poster/reddit"
	"auto_reddit_speakout_poster/source"
)

// app is the wired process: config, ledger, Reddit client and publisher.
type app struct {
	cfg      publisher.Config
	logger   logging.Logger
	ledger   ledger.Ledger
	pub      *publisher.Publisher
	registry *prometheus.Registry
	redis    *goredis.Client
}

func newApp(ctx context.Context) (*app, error) {
	logger := logging.NewWithService("speakout-poster")
	publisher.LoadEnvFiles(logger)
	logger.SetLevel(logging.LevelFromEnv())
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := publisher.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.openLedger(ctx); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	rc, err := reddit.New(reddit.Config{
		AppID:     cfg.Reddit.AppID,
		AppSecret: cfg.Reddit.AppSecret,
		Username:  cfg.Reddit.Username,
		Password:  cfg.Reddit.Password,
		UserAgent: cfg.Reddit.UserAgent,
	}, httpClient, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	fetcher := source.NewFetcher(source.Options{ListURL: cfg.Source.ListURL}, httpClient, logger)

	deps := publisher.Deps{
		Source:   fetcher,
		Auth:     rc,
		Platform: rc,
		Ledger:   a.ledger,
		Metrics:  publisher.NewMetrics(a.registry),
	}
	if detector, err := buildDetector(cfg, logger); err != nil {
		logger.WithError(err).Warn("Party detection disabled")
	} else if detector != nil {
		deps.Flair = detector
	}

	a.pub, err = publisher.New(deps, publisher.Options{
		Subreddit:      cfg.Reddit.Subreddit,
		TitleLabel:     cfg.Reddit.TitleLabel,
		BotUsername:    rc.Username(),
		FlairTemplates: cfg.Reddit.FlairTemplates,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openLedger(ctx context.Context) error {
	switch a.cfg.Ledger.Backend {
	case "memory":
		a.ledger = ledger.NewMemoryLedger(a.cfg.Ledger.MaxHistory)
		a.logger.Warn("Using in-memory run history; it is lost on restart")
	case "redis":
		client, err := ledger.Dial(ctx, a.cfg.Ledger.RedisURL)
		if err != nil {
			return err
		}
		a.redis = client
		a.ledger = ledger.NewRedisLedger(client, a.cfg.Ledger.Key, a.cfg.Ledger.MaxHistory)
	default:
		return fmt.Errorf("ledger backend %s not supported", a.cfg.Ledger.Backend)
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// buildDetector returns nil without error when no model is configured.
func buildDetector(cfg publisher.Config, logger logging.Logger) (*flair.Detector, error) {
	if cfg.LLM == nil || cfg.LLM.APIKey == "" {
		return nil, nil
	}
	vision, err := buildLLM(cfg.LLM, cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	var lookup flair.LLMClient
	if cfg.LLM.SearchModel != "" {
		if lookup, err = buildLLM(cfg.LLM, cfg.LLM.SearchModel); err != nil {
			return nil, err
		}
	}
	return flair.NewDetector(vision, lookup, logger)
}

func buildLLM(cfg *publisher.LLMConfig, model string) (flair.LLMClient, error) {
	settings := &flair.LLMSettings{
		Provider: cfg.Provider,
		Model:    model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}
	switch cfg.Provider {
	case "openai":
		return flair.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek speaks the OpenAI API at its own base_url.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return flair.NewOpenAILLMFromConfig(settings)
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}
