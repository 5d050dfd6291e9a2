package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"social-brand-analyzer/pkg/analysis"
	"social-brand-analyzer/pkg/cache"
	"social-brand-analyzer/pkg/database"
	"social-brand-analyzer/pkg/external"
	"social-brand-analyzer/pkg/models"
	"social-brand-analyzer/pkg/queue"
	"social-brand-analyzer/pkg/report"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAnalysisNotFound  = errors.New("analysis not found")
	ErrInvalidAnalysisID = errors.New("invalid analysis ID")
	ErrInvalidRequest    = errors.New("invalid analysis request")
	ErrNoData            = errors.New("no analysis data available")
	ErrAnalysisRunning   = errors.New("analysis is still running")
)

// DefaultLookback is the window scraped for a new analysis
const DefaultLookback = 90 * 24 * time.Hour

// RecentAnalysesLimit is the size of the recent analyses list
const RecentAnalysesLimit = 20

// Scraper fetches posts and profiles of brand accounts
type Scraper interface {
	InstagramPosts(ctx context.Context, accountURL string, filter models.TimeFilter) ([]models.Post, error)
	InstagramProfile(ctx context.Context, accountURL string) (models.ProfileData, error)
	FacebookPosts(ctx context.Context, pageURL string, filter models.TimeFilter) ([]models.Post, error)
	FacebookProfile(ctx context.Context, pageURL string) (models.ProfileData, error)
}

// PostClassifier labels a batch of posts
type PostClassifier interface {
	ClassifyPosts(ctx context.Context, posts []models.Post, target analysis.Target, platform string) []models.Post
}

// Store persists analysis documents
type Store interface {
	SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysis(ctx context.Context, analysisID string) (*models.AnalysisResult, error)
	ListRecentAnalyses(ctx context.Context, limit int) ([]models.AnalysisSummary, error)
	DeleteAnalysis(ctx context.Context, analysisID string) (bool, error)
	DeleteAnalysesOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	SaveBrandConfigs(ctx context.Context, analysisID string, brands map[string]models.BrandConfig) error
	GetBrandConfigs(ctx context.Context, analysisID string) (map[string]models.BrandConfig, error)
}

// TaskQueue runs analyses in the background
type TaskQueue interface {
	EnqueueTask(task queue.Task) error
	IsRunning(taskID string) bool
}

// AnalysisRequest starts an analysis of one or more brands
type AnalysisRequest struct {
	Brands          map[string]models.BrandConfig       `json:"brands_config"`
	ReferenceImages map[string]models.ReferenceImageSet `json:"reference_images"`
}

// Validate checks the request has at least one fully configured brand
func (r AnalysisRequest) Validate() error {
	if len(r.Brands) == 0 {
		return fmt.Errorf("%w: at least one brand is required", ErrInvalidRequest)
	}
	for name, cfg := range r.Brands {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: brand name cannot be empty", ErrInvalidRequest)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: brand %s: %v", ErrInvalidRequest, name, err)
		}
	}
	return nil
}

// Options wires a Service. Store and Queue are optional: without a store
// analyses live in the cache only, without a queue StartAnalysis is
// unavailable.
type Options struct {
	Scraper    Scraper
	Classifier PostClassifier
	Store      Store
	Cache      cache.StatusCache
	References external.ReferenceStore
	Queue      TaskQueue
	Lookback   time.Duration
}

// Service orchestrates brand analyses: scraping, classification, metrics
// and the lifecycle of the stored documents.
type Service struct {
	scraper    Scraper
	classifier PostClassifier
	store      Store
	cache      cache.StatusCache
	refs       external.ReferenceStore
	queue      TaskQueue
	lookback   time.Duration
	now        func() time.Time
}

// New creates a service
func New(opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache()
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}

	return &Service{
		scraper:    opts.Scraper,
		classifier: opts.Classifier,
		store:      opts.Store,
		cache:      opts.Cache,
		refs:       opts.References,
		queue:      opts.Queue,
		lookback:   opts.Lookback,
		now:        time.Now,
	}
}

// StartAnalysis stores the initial document and queues the run. It returns
// the new analysis ID.
func (s *Service) StartAnalysis(ctx context.Context, req AnalysisRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if s.queue == nil {
		return "", errors.New("analysis queue not configured")
	}

	analysisID := uuid.New().String()
	now := s.now().UTC()
	filter := models.TimeFilter{Start: now.Add(-s.lookback), End: now}
	references := s.ownedReferences(req.ReferenceImages)

	result := &models.AnalysisResult{
		AnalysisID:      analysisID,
		Status:          models.StatusStarting,
		Progress:        5,
		Message:         "Initializing analysis...",
		BrandsData:      map[string]models.BrandData{},
		UniversalFilter: &filter,
		ReferenceImages: references,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.save(ctx, result); err != nil {
		return "", err
	}
	if s.store != nil {
		if err := s.store.SaveBrandConfigs(ctx, analysisID, req.Brands); err != nil {
			return "", err
		}
	}

	brands := req.Brands
	task := &queue.AnalysisTask{
		AnalysisID: analysisID,
		Run: func(ctx context.Context, id string) error {
			return s.runAnalysis(ctx, id, brands, filter, references)
		},
	}
	if err := s.queue.EnqueueTask(task); err != nil {
		result.Status = models.StatusError
		result.Message = fmt.Sprintf("Error during analysis: %v", err)
		result.UpdatedAt = s.now().UTC()
		s.persist(context.WithoutCancel(ctx), result)
		return "", fmt.Errorf("failed to queue analysis: %w", err)
	}

	log.Info().
		Str("analysis_id", analysisID).
		Int("brands", len(req.Brands)).
		Time("start", filter.Start).
		Time("end", filter.End).
		Msg("analysis started")

	return analysisID, nil
}

// RerunAnalysis starts a new analysis with the brand configuration and
// reference images saved for analysisID, scraping a fresh window
func (s *Service) RerunAnalysis(ctx context.Context, analysisID string) (string, error) {
	previous, err := s.GetAnalysis(ctx, analysisID)
	if err != nil {
		return "", err
	}
	if s.store == nil {
		return "", fmt.Errorf("%w: no stored brand configuration", ErrNoData)
	}

	brands, err := s.store.GetBrandConfigs(ctx, analysisID)
	if err != nil {
		return "", err
	}
	if len(brands) == 0 {
		return "", fmt.Errorf("%w: no stored brand configuration", ErrNoData)
	}

	newID, err := s.StartAnalysis(ctx, AnalysisRequest{Brands: brands, ReferenceImages: previous.ReferenceImages})
	if err != nil {
		return "", err
	}

	log.Info().Str("analysis_id", newID).Str("previous_id", analysisID).Msg("analysis re-run")
	return newID, nil
}

// ownedReferences drops reference paths that were not stored by this
// service's reference store.
func (s *Service) ownedReferences(refs map[string]models.ReferenceImageSet) map[string]models.ReferenceImageSet {
	if len(refs) == 0 || s.refs == nil {
		return nil
	}

	out := make(map[string]models.ReferenceImageSet, len(refs))
	for brand, set := range refs {
		kept := models.ReferenceImageSet{}
		for model, paths := range set {
			for _, path := range paths {
				if !s.refs.Contains(path) {
					log.Warn().Str("brand", brand).Str("model", model).Str("path", path).Msg("ignoring reference image outside upload directory")
					continue
				}
				kept[model] = append(kept[model], path)
			}
		}
		if len(kept) > 0 {
			out[brand] = kept
		}
	}
	return out
}

// progressTracker turns run steps into the status document updates
type progressTracker struct {
	svc        *Service
	result     *models.AnalysisResult
	step       int
	totalSteps int
}

func (p *progressTracker) advance(ctx context.Context, message string, increment int) {
	p.step += increment
	progress := p.step*90/p.totalSteps + 5
	progress = min(95, max(5, progress))

	p.result.Status = models.StatusProcessing
	p.result.Progress = progress
	p.result.Message = message
	p.result.UpdatedAt = p.svc.now().UTC()

	log.Info().
		Str("analysis_id", p.result.AnalysisID).
		Int("progress", progress).
		Msg(message)

	p.svc.persist(ctx, p.result)
}

func (s *Service) runAnalysis(ctx context.Context, analysisID string, brands map[string]models.BrandConfig, filter models.TimeFilter, references map[string]models.ReferenceImageSet) error {
	result, err := s.GetAnalysis(ctx, analysisID)
	if err != nil {
		return err
	}
	if result.BrandsData == nil {
		result.BrandsData = map[string]models.BrandData{}
	}

	tracker := &progressTracker{svc: s, result: result, step: 1, totalSteps: len(brands) * 5}
	tracker.advance(ctx, "Starting to scrape social media data...", 0)

	names := make([]string, 0, len(brands))
	for name := range brands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, result, err)
		}

		data, err := s.analyzeBrand(ctx, name, brands[name], filter, references[name], func(message string) {
			tracker.advance(ctx, message, 1)
		})
		if err != nil {
			return s.fail(ctx, result, err)
		}
		result.BrandsData[name] = data
	}

	result.Status = models.StatusCompleted
	result.Progress = 100
	result.Message = "Analysis completed successfully!"
	result.UpdatedAt = s.now().UTC()
	s.persist(ctx, result)

	log.Info().Str("analysis_id", analysisID).Int("brands", len(names)).Msg("analysis completed")
	return nil
}

// fail records err on the document; the save outlives a cancelled run
func (s *Service) fail(ctx context.Context, result *models.AnalysisResult, err error) error {
	result.Status = models.StatusError
	result.Message = fmt.Sprintf("Error during analysis: %v", err)
	result.UpdatedAt = s.now().UTC()

	log.Error().Err(err).Str("analysis_id", result.AnalysisID).Msg("analysis failed")
	s.persist(context.WithoutCancel(ctx), result)
	return err
}

// AnalyzeBrand scrapes, classifies and summarizes a single brand
func (s *Service) AnalyzeBrand(ctx context.Context, name string, cfg models.BrandConfig, filter models.TimeFilter, references models.ReferenceImageSet) (models.BrandData, error) {
	return s.analyzeBrand(ctx, name, cfg, filter, references, func(string) {})
}

func (s *Service) analyzeBrand(ctx context.Context, name string, cfg models.BrandConfig, filter models.TimeFilter, references models.ReferenceImageSet, step func(message string)) (models.BrandData, error) {
	logger := log.With().Str("brand", name).Logger()
	logger.Info().Strs("reference_models", referenceModels(references)).Msg("analyzing brand")

	step(fmt.Sprintf("Scraping Instagram data for %s...", name))
	instagram := s.scrapePlatform(ctx, name, models.PlatformInstagram, cfg.InstagramURL, filter)
	logger.Info().Int("posts", len(instagram.Posts)).Msg("scraped Instagram posts")

	step(fmt.Sprintf("Scraping Facebook data for %s...", name))
	facebook := s.scrapePlatform(ctx, name, models.PlatformFacebook, cfg.FacebookURL, filter)
	logger.Info().Int("posts", len(facebook.Posts)).Msg("scraped Facebook posts")

	if err := ctx.Err(); err != nil {
		return models.BrandData{}, err
	}

	target := analysis.Target{Brand: name, Keywords: cfg.Keywords, References: references}

	step(fmt.Sprintf("Analyzing Instagram posts for %s...", name))
	instagramPosts := s.classifier.ClassifyPosts(ctx, instagram.Posts, target, models.PlatformInstagram)

	step(fmt.Sprintf("Analyzing Facebook posts for %s...", name))
	facebookPosts := s.classifier.ClassifyPosts(ctx, facebook.Posts, target, models.PlatformFacebook)

	if err := ctx.Err(); err != nil {
		return models.BrandData{}, err
	}

	step(fmt.Sprintf("Calculating engagement metrics for %s...", name))
	return analysis.SummarizeBrand(analysis.BrandInput{
		InstagramProfile: instagram.Profile,
		FacebookProfile:  facebook.Profile,
		InstagramPosts:   tagPosts(instagramPosts, name, models.PlatformInstagram),
		FacebookPosts:    tagPosts(facebookPosts, name, models.PlatformFacebook),
		Keywords:         cfg.Keywords,
	}), nil
}

func tagPosts(posts []models.Post, brand, platform string) []models.Post {
	for i := range posts {
		posts[i].Brand = brand
		if posts[i].Platform == "" {
			posts[i].Platform = platform
		}
	}
	return posts
}

func referenceModels(refs models.ReferenceImageSet) []string {
	names := make([]string, 0, len(refs))
	for model := range refs {
		names = append(names, model)
	}
	sort.Strings(names)
	return names
}

// GetAnalysis returns the status document, preferring the cache
func (s *Service) GetAnalysis(ctx context.Context, analysisID string) (*models.AnalysisResult, error) {
	if !validAnalysisID(analysisID) {
		return nil, ErrInvalidAnalysisID
	}

	result, ok, err := s.cache.Get(ctx, analysisID)
	if err != nil {
		log.Warn().Err(err).Str("analysis_id", analysisID).Msg("status cache read failed, falling back to store")
	}
	if ok {
		return result, nil
	}

	if s.store == nil {
		return nil, ErrAnalysisNotFound
	}

	result, err = s.store.GetAnalysis(ctx, analysisID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecentAnalyses lists the newest analyses first
func (s *Service) RecentAnalyses(ctx context.Context) ([]models.AnalysisSummary, error) {
	if s.store == nil {
		return []models.AnalysisSummary{}, nil
	}
	return s.store.ListRecentAnalyses(ctx, RecentAnalysesLimit)
}

// FilterResults re-slices a finished analysis to a time window and
// recomputes every metric. The stored document is not modified.
func (s *Service) FilterResults(ctx context.Context, analysisID string, filter models.TimeFilter) (*models.FilteredResults, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	result, err := s.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	filtered := make(map[string]models.BrandData, len(result.BrandsData))
	for name, data := range result.BrandsData {
		brand, stats := analysis.FilterBrandData(data, filter)
		filtered[name] = brand

		log.Debug().
			Str("analysis_id", analysisID).
			Str("brand", name).
			Int("kept", stats.Kept).
			Int("out_of_range", stats.OutOfRange).
			Int("unparseable", stats.Unparseable).
			Msg("filtered brand posts")
	}

	return &models.FilteredResults{FilteredResults: filtered, TimeFilter: filter}, nil
}

// ExportCSV writes the posts of an analysis as CSV, optionally restricted
// to a time window
func (s *Service) ExportCSV(ctx context.Context, analysisID string, filter *models.TimeFilter, w io.Writer) (int, error) {
	result, err := s.GetAnalysis(ctx, analysisID)
	if err != nil {
		return 0, err
	}
	if len(result.BrandsData) == 0 {
		return 0, ErrNoData
	}

	rows, err := report.WriteCSV(w, result.BrandsData, filter)
	if err != nil {
		return rows, err
	}

	log.Info().Str("analysis_id", analysisID).Int("rows", rows).Bool("filtered", filter != nil).Msg("exported analysis CSV")
	return rows, nil
}

// UploadReferenceImages stores reference photos of one model
func (s *Service) UploadReferenceImages(ctx context.Context, analysisID, brand, model string, files []external.ReferenceUpload) ([]string, error) {
	if s.refs == nil {
		return nil, errors.New("reference image storage not configured")
	}
	if !validAnalysisID(analysisID) {
		return nil, ErrInvalidAnalysisID
	}
	if strings.TrimSpace(brand) == "" || strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: brand and model are required", ErrInvalidRequest)
	}
	return s.refs.Save(ctx, analysisID, brand, model, files)
}

// DeleteAnalysis removes an analysis from the cache, the store and its
// reference images from disk. A run in progress cannot be deleted.
func (s *Service) DeleteAnalysis(ctx context.Context, analysisID string) error {
	if !validAnalysisID(analysisID) {
		log.Warn().Str("analysis_id", analysisID).Msg("invalid analysis ID received for deletion")
		return ErrInvalidAnalysisID
	}
	if s.queue != nil && s.queue.IsRunning(queue.AnalysisTaskID(analysisID)) {
		return ErrAnalysisRunning
	}

	_, cached, err := s.cache.Get(ctx, analysisID)
	if err != nil {
		log.Warn().Err(err).Str("analysis_id", analysisID).Msg("status cache read failed")
	}
	if err := s.cache.Delete(ctx, analysisID); err != nil {
		log.Warn().Err(err).Str("analysis_id", analysisID).Msg("failed to evict analysis from cache")
	}

	stored := false
	if s.store != nil {
		if stored, err = s.store.DeleteAnalysis(ctx, analysisID); err != nil {
			return err
		}
	}

	if !cached && !stored {
		return ErrAnalysisNotFound
	}

	s.removeReferences(analysisID)
	log.Info().Str("analysis_id", analysisID).Msg("analysis deleted")
	return nil
}

// Cleanup deletes analyses not updated within maxAge and returns how many
// were removed
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if s.store == nil {
		return 0, nil
	}

	ids, err := s.store.DeleteAnalysesOlderThan(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.cache.Delete(ctx, id); err != nil {
			log.Warn().Err(err).Str("analysis_id", id).Msg("failed to evict analysis from cache")
		}
		s.removeReferences(id)
	}
	return len(ids), nil
}

func (s *Service) removeReferences(analysisID string) {
	if s.refs == nil {
		return
	}
	if err := s.refs.Remove(analysisID); err != nil {
		log.Warn().Err(err).Str("analysis_id", analysisID).Msg("failed to remove reference images")
	}
}

// save writes the document to the cache and the store, failing on either
func (s *Service) save(ctx context.Context, result *models.AnalysisResult) error {
	if err := s.cache.Set(ctx, result); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.SaveAnalysis(ctx, result)
	}
	return nil
}

// persist is save for progress updates: failures are logged, not returned
func (s *Service) persist(ctx context.Context, result *models.AnalysisResult) {
	if err := s.save(ctx, result); err != nil {
		log.Error().Err(err).Str("analysis_id", result.AnalysisID).Msg("failed to save analysis progress")
	}
}

func validAnalysisID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != "undefined" && id != "null"
}
