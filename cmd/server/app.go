package main

import (
	"context"
	"fmt"
	"time"

	"social-brand-analyzer/pkg/analysis"
	"social-brand-analyzer/pkg/cache"
	"social-brand-analyzer/pkg/external"
	"social-brand-analyzer/pkg/imaging"
	"social-brand-analyzer/pkg/llm"
	"social-brand-analyzer/pkg/queue"
	"social-brand-analyzer/pkg/service"
	"social-brand-analyzer/pkg/utils"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// analysisTimeout bounds one queued analysis run
const analysisTimeout = 2 * time.Hour

type app struct {
	svc     *service.Service
	pool    *queue.WorkerPool
	closers []func() error
}

// newApp wires the analysis service. A nil store keeps analyses in the
// status cache only. Without analyze only stored analyses can be read and
// cleaned up, so no LLM key or scraping token is needed.
func newApp(ctx context.Context, config *utils.Config, store service.Store, analyze bool) (*app, error) {
	a := &app{}

	var statusCache cache.StatusCache = cache.NewMemoryCache()
	if config.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(ctx, config.RedisURL, cache.DefaultTTL)
		if err != nil {
			return nil, err
		}
		statusCache = redisCache
		a.closers = append(a.closers, redisCache.Close)
	}

	opts := service.Options{
		Store:      store,
		Cache:      statusCache,
		References: external.NewLocalReferenceStore(config.UploadDir),
		Lookback:   config.AnalysisLookback,
	}

	if analyze {
		classifier, err := newPipeline(config)
		if err != nil {
			a.Close()
			return nil, err
		}

		apify := external.NewApifyClient(external.ApifyOptions{
			Token:             config.ApifyToken,
			RequestsPerSecond: config.RateLimit,
		})

		a.pool = queue.NewWorkerPool(queue.WorkerPoolOptions{
			NumWorkers:  config.MaxConcurrency,
			BufferSize:  config.MaxConcurrency * 10,
			TaskTimeout: analysisTimeout,
		})

		opts.Scraper = external.NewSocialScraper(apify, config.ScrapeResultsLimit)
		opts.Classifier = classifier
		opts.Queue = a.pool
	}

	a.svc = service.New(opts)
	return a, nil
}

func newPipeline(config *utils.Config) (*analysis.Pipeline, error) {
	provider, err := llm.New(llm.Config{
		Provider:     config.LLMProvider,
		Model:        config.LLMModel,
		OpenAIKey:    config.OpenAIAPIKey,
		AnthropicKey: config.AnthropicAPIKey,
		Timeout:      config.ClassifyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	limited := llm.WithRateLimit(provider, rate.NewLimiter(rate.Limit(config.LLMRateLimit), 1))
	classifier := analysis.NewClassifier(limited, imaging.NewPreparer(config.ImageFetchTimeout))

	log.Info().Str("provider", provider.Name()).Int("rate_limit", config.LLMRateLimit).Msg("classifier ready")

	return analysis.NewPipeline(classifier, analysis.PipelineOptions{
		Pacer:       analysis.FixedDelay(config.ClassifyDelay),
		CallTimeout: config.ClassifyTimeout,
	}), nil
}

func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
}
