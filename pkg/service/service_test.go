package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"social-brand-analyzer/pkg/analysis"
	"social-brand-analyzer/pkg/cache"
	"social-brand-analyzer/pkg/database"
	"social-brand-analyzer/pkg/external"
	"social-brand-analyzer/pkg/models"
	"social-brand-analyzer/pkg/queue"

	"github.com/go-playground/assert/v2"
)

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func ts(days int) models.Timestamp {
	return models.NewTimestamp(testNow.AddDate(0, 0, -days))
}

type fakeScraper struct {
	instagram map[string][]models.Post
	facebook  map[string][]models.Post
	failFB    bool
}

func (f *fakeScraper) InstagramPosts(ctx context.Context, url string, filter models.TimeFilter) ([]models.Post, error) {
	return f.instagram[url], nil
}

func (f *fakeScraper) InstagramProfile(ctx context.Context, url string) (models.ProfileData, error) {
	return models.ProfileData{Username: url, Followers: 100, Platform: models.PlatformInstagram}, nil
}

func (f *fakeScraper) FacebookPosts(ctx context.Context, url string, filter models.TimeFilter) ([]models.Post, error) {
	if f.failFB {
		return nil, errors.New("actor failed")
	}
	return f.facebook[url], nil
}

func (f *fakeScraper) FacebookProfile(ctx context.Context, url string) (models.ProfileData, error) {
	if f.failFB {
		return models.ProfileData{Username: url}, errors.New("actor failed")
	}
	return models.ProfileData{Username: url, Followers: 50, Platform: models.PlatformFacebook}, nil
}

// keywordClassifier labels a post with the first keyword found in its caption
type keywordClassifier struct{}

func (keywordClassifier) ClassifyPosts(ctx context.Context, posts []models.Post, target analysis.Target, platform string) []models.Post {
	out := make([]models.Post, len(posts))
	copy(out, posts)
	for i := range out {
		out[i].Model = models.Unclassified
		for _, kw := range target.Keywords {
			if strings.Contains(strings.ToUpper(out[i].Caption+out[i].Text), kw) {
				out[i].Model = kw
				out[i].ClassificationConfidence = 90
				break
			}
		}
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	analyses map[string]*models.AnalysisResult
	brands   map[string]map[string]models.BrandConfig
	progress []int
	saveErr  error
	oldIDs   []string
	cutoff   time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		analyses: make(map[string]*models.AnalysisResult),
		brands:   make(map[string]map[string]models.BrandConfig),
	}
}

func (f *fakeStore) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.analyses[result.AnalysisID] = result.Clone()
	f.progress = append(f.progress, result.Progress)
	return nil
}

func (f *fakeStore) GetAnalysis(ctx context.Context, id string) (*models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.analyses[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return result.Clone(), nil
}

func (f *fakeStore) ListRecentAnalyses(ctx context.Context, limit int) ([]models.AnalysisSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.AnalysisSummary{}
	for _, r := range f.analyses {
		out = append(out, models.AnalysisSummary{AnalysisID: r.AnalysisID, Status: r.Status, UpdatedAt: r.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteAnalysis(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.analyses[id]
	delete(f.analyses, id)
	return ok, nil
}

func (f *fakeStore) DeleteAnalysesOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	f.cutoff = cutoff
	return f.oldIDs, nil
}

func (f *fakeStore) SaveBrandConfigs(ctx context.Context, id string, brands map[string]models.BrandConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brands[id] = brands
	return nil
}

func (f *fakeStore) GetBrandConfigs(ctx context.Context, id string) (map[string]models.BrandConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.brands[id], nil
}

// inlineQueue runs tasks as soon as they are enqueued
type inlineQueue struct {
	err     error
	runs    int
	running map[string]bool
}

func (q *inlineQueue) EnqueueTask(task queue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.runs++
	return task.Process(context.Background())
}

func (q *inlineQueue) IsRunning(taskID string) bool {
	return q.running[taskID]
}

type fakeRefs struct {
	removed []string
	saved   []external.ReferenceUpload
}

func (f *fakeRefs) Save(ctx context.Context, analysisID, brand, model string, files []external.ReferenceUpload) ([]string, error) {
	f.saved = append(f.saved, files...)
	return []string{"uploads/reference/" + analysisID + "/" + brand + "/" + model + "/ref_1.jpg"}, nil
}

func (f *fakeRefs) Remove(analysisID string) error {
	f.removed = append(f.removed, analysisID)
	return nil
}

func (f *fakeRefs) Contains(path string) bool {
	return strings.HasPrefix(path, "uploads/reference/")
}

type fixture struct {
	svc   *Service
	store *fakeStore
	cache *cache.MemoryCache
	queue *inlineQueue
	refs  *fakeRefs
}

func newFixture(scraper Scraper) *fixture {
	f := &fixture{
		store: newFakeStore(),
		cache: cache.NewMemoryCache(),
		queue: &inlineQueue{},
		refs:  &fakeRefs{},
	}
	f.svc = New(Options{
		Scraper:    scraper,
		Classifier: keywordClassifier{},
		Store:      f.store,
		Cache:      f.cache,
		References: f.refs,
		Queue:      f.queue,
	})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func bydScraper() *fakeScraper {
	return &fakeScraper{
		instagram: map[string][]models.Post{
			"ig/byd": {
				{ID: "i1", Caption: "The SEAL is here", Engagement: 300, Timestamp: ts(5)},
				{ID: "i2", Caption: "Family trips in the ATTO 3", Engagement: 100, Timestamp: ts(40)},
			},
		},
		facebook: map[string][]models.Post{
			"fb/byd": {
				{ID: "f1", Text: "SEAL test drive", Engagement: 50, Timestamp: ts(2)},
				{ID: "f2", Text: "Happy holidays", Engagement: 10, Timestamp: ts(80)},
			},
		},
	}
}

func bydRequest() AnalysisRequest {
	return AnalysisRequest{
		Brands: map[string]models.BrandConfig{
			"BYD": {InstagramURL: "ig/byd", FacebookURL: "fb/byd", Keywords: []string{"SEAL", "ATTO 3"}},
		},
		ReferenceImages: map[string]models.ReferenceImageSet{
			"BYD": {
				"SEAL":  {"uploads/reference/tmp/BYD/SEAL/ref_1.jpg", "/etc/passwd"},
				"DOLPH": {"../secret.jpg"},
			},
		},
	}
}

func TestStartAnalysis_RunsToCompletion(t *testing.T) {
	f := newFixture(bydScraper())

	id, err := f.svc.StartAnalysis(context.Background(), bydRequest())
	assert.Equal(t, nil, err)
	assert.NotEqual(t, "", id)
	assert.Equal(t, 1, f.queue.runs)

	result, err := f.svc.GetAnalysis(context.Background(), id)
	assert.Equal(t, nil, err)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, 100, result.Progress)
	assert.Equal(t, "Analysis completed successfully!", result.Message)

	assert.Equal(t, true, result.UniversalFilter.End.Equal(testNow))
	assert.Equal(t, true, result.UniversalFilter.Start.Equal(testNow.AddDate(0, 0, -90)))

	// only reference paths from the upload store survive
	assert.Equal(t, map[string]models.ReferenceImageSet{
		"BYD": {"SEAL": {"uploads/reference/tmp/BYD/SEAL/ref_1.jpg"}},
	}, result.ReferenceImages)

	byd := result.BrandsData["BYD"]
	assert.Equal(t, 2, len(byd.Instagram.Posts))
	assert.Equal(t, 2, len(byd.Facebook.Posts))
	assert.Equal(t, "SEAL", byd.Instagram.Posts[0].Model)
	assert.Equal(t, "BYD", byd.Instagram.Posts[0].Brand)
	assert.Equal(t, models.PlatformFacebook, byd.Facebook.Posts[0].Platform)
	assert.Equal(t, 2, byd.Instagram.Metrics.TotalPosts)
	assert.Equal(t, 4, byd.OverallMetrics.TotalPosts)
	assert.Equal(t, 2, byd.OverallMetrics.ModelBreakdown["SEAL"].PostsCount)
	assert.Equal(t, "i1", byd.TopPosts[0].ID)
	assert.Equal(t, "f2", byd.LowPosts[0].ID)
	assert.Equal(t, 100, byd.Instagram.Profile.Followers)

	assert.Equal(t, []string{"SEAL", "ATTO 3"}, f.store.brands[id]["BYD"].Keywords)
}

func TestStartAnalysis_ProgressIsMonotonic(t *testing.T) {
	f := newFixture(bydScraper())

	_, err := f.svc.StartAnalysis(context.Background(), bydRequest())
	assert.Equal(t, nil, err)

	// initial + start + five brand steps + completion
	assert.Equal(t, []int{5, 23, 41, 59, 77, 95, 95, 100}, f.store.progress)
}

func TestStartAnalysis_ScrapeFailureDegrades(t *testing.T) {
	scraper := bydScraper()
	scraper.failFB = true
	f := newFixture(scraper)

	id, err := f.svc.StartAnalysis(context.Background(), bydRequest())
	assert.Equal(t, nil, err)

	result, _ := f.svc.GetAnalysis(context.Background(), id)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, 0, len(result.BrandsData["BYD"].Facebook.Posts))
	assert.Equal(t, "fb/byd", result.BrandsData["BYD"].Facebook.Profile.Username)
	assert.Equal(t, models.PlatformFacebook, result.BrandsData["BYD"].Facebook.Profile.Platform)
}

func TestStartAnalysis_Validation(t *testing.T) {
	f := newFixture(bydScraper())

	tests := []struct {
		name string
		req  AnalysisRequest
	}{
		{"no brands", AnalysisRequest{}},
		{"missing facebook", AnalysisRequest{Brands: map[string]models.BrandConfig{
			"BYD": {InstagramURL: "ig", Keywords: []string{"SEAL"}},
		}}},
		{"no keywords", AnalysisRequest{Brands: map[string]models.BrandConfig{
			"BYD": {InstagramURL: "ig", FacebookURL: "fb"},
		}}},
		{"blank name", AnalysisRequest{Brands: map[string]models.BrandConfig{
			" ": {InstagramURL: "ig", FacebookURL: "fb", Keywords: []string{"SEAL"}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.StartAnalysis(context.Background(), tt.req)
			assert.Equal(t, true, errors.Is(err, ErrInvalidRequest))
		})
	}
	assert.Equal(t, 0, f.queue.runs)
}

func TestStartAnalysis_QueueFull(t *testing.T) {
	f := newFixture(bydScraper())
	f.queue.err = queue.ErrQueueFull

	_, err := f.svc.StartAnalysis(context.Background(), bydRequest())
	assert.Equal(t, true, errors.Is(err, queue.ErrQueueFull))

	for _, stored := range f.store.analyses {
		assert.Equal(t, models.StatusError, stored.Status)
		assert.Equal(t, "Error during analysis: task queue is full", stored.Message)
	}
}

func TestRunAnalysis_CancelledMarksError(t *testing.T) {
	f := newFixture(bydScraper())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := &models.AnalysisResult{AnalysisID: "a1", Status: models.StatusStarting}
	f.cache.Set(context.Background(), result)

	err := f.svc.runAnalysis(ctx, "a1", bydRequest().Brands, models.TimeFilter{}, nil)
	assert.Equal(t, context.Canceled, err)

	got, _ := f.svc.GetAnalysis(context.Background(), "a1")
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "Error during analysis: context canceled", got.Message)
}

func TestGetAnalysis(t *testing.T) {
	f := newFixture(bydScraper())
	f.store.analyses["stored"] = &models.AnalysisResult{AnalysisID: "stored", Status: models.StatusCompleted}

	got, err := f.svc.GetAnalysis(context.Background(), "stored")
	assert.Equal(t, nil, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	_, err = f.svc.GetAnalysis(context.Background(), "missing")
	assert.Equal(t, ErrAnalysisNotFound, err)

	_, err = f.svc.GetAnalysis(context.Background(), "undefined")
	assert.Equal(t, ErrInvalidAnalysisID, err)
}

func TestFilterResults(t *testing.T) {
	f := newFixture(bydScraper())
	id, _ := f.svc.StartAnalysis(context.Background(), bydRequest())

	filter := models.TimeFilter{Start: testNow.AddDate(0, 0, -10), End: testNow}
	filtered, err := f.svc.FilterResults(context.Background(), id, filter)
	assert.Equal(t, nil, err)

	byd := filtered.FilteredResults["BYD"]
	assert.Equal(t, 1, len(byd.Instagram.Posts))
	assert.Equal(t, 1, len(byd.Facebook.Posts))
	assert.Equal(t, 2, byd.OverallMetrics.TotalPosts)
	assert.Equal(t, 350, byd.OverallMetrics.TotalEngagement)
	assert.Equal(t, 100, byd.Instagram.Profile.Followers)

	// the stored document keeps every post
	result, _ := f.svc.GetAnalysis(context.Background(), id)
	assert.Equal(t, 4, result.BrandsData["BYD"].OverallMetrics.TotalPosts)

	_, err = f.svc.FilterResults(context.Background(), id, models.TimeFilter{Start: testNow, End: testNow.AddDate(0, 0, -1)})
	assert.Equal(t, true, errors.Is(err, ErrInvalidRequest))
}

func TestExportCSV(t *testing.T) {
	f := newFixture(bydScraper())
	id, _ := f.svc.StartAnalysis(context.Background(), bydRequest())

	var buf bytes.Buffer
	rows, err := f.svc.ExportCSV(context.Background(), id, nil, &buf)
	assert.Equal(t, nil, err)
	assert.Equal(t, 4, rows)

	records, _ := csv.NewReader(&buf).ReadAll()
	assert.Equal(t, 5, len(records))

	filter := &models.TimeFilter{Start: testNow.AddDate(0, 0, -3), End: testNow}
	buf.Reset()
	rows, err = f.svc.ExportCSV(context.Background(), id, filter, &buf)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, rows)

	f.cache.Set(context.Background(), &models.AnalysisResult{AnalysisID: "empty", Status: models.StatusStarting})
	_, err = f.svc.ExportCSV(context.Background(), "empty", nil, &buf)
	assert.Equal(t, ErrNoData, err)
}

func TestDeleteAnalysis(t *testing.T) {
	f := newFixture(bydScraper())
	id, _ := f.svc.StartAnalysis(context.Background(), bydRequest())

	for _, invalid := range []string{"", "undefined", "null"} {
		assert.Equal(t, ErrInvalidAnalysisID, f.svc.DeleteAnalysis(context.Background(), invalid))
	}

	f.queue.running = map[string]bool{"analysis:" + id: true}
	assert.Equal(t, ErrAnalysisRunning, f.svc.DeleteAnalysis(context.Background(), id))
	assert.Equal(t, 0, len(f.refs.removed))
	f.queue.running = nil

	assert.Equal(t, nil, f.svc.DeleteAnalysis(context.Background(), id))
	assert.Equal(t, []string{id}, f.refs.removed)

	_, err := f.svc.GetAnalysis(context.Background(), id)
	assert.Equal(t, ErrAnalysisNotFound, err)

	assert.Equal(t, ErrAnalysisNotFound, f.svc.DeleteAnalysis(context.Background(), id))
}

func TestRecentAnalyses(t *testing.T) {
	f := newFixture(bydScraper())
	f.svc.StartAnalysis(context.Background(), bydRequest())

	recent, err := f.svc.RecentAnalyses(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(recent))
	assert.Equal(t, models.StatusCompleted, recent[0].Status)
}

func TestCleanup(t *testing.T) {
	f := newFixture(bydScraper())
	f.store.oldIDs = []string{"old1", "old2"}
	f.cache.Set(context.Background(), &models.AnalysisResult{AnalysisID: "old1"})

	n, err := f.svc.Cleanup(context.Background(), 7*24*time.Hour)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, true, f.store.cutoff.Equal(testNow.AddDate(0, 0, -7)))
	assert.Equal(t, []string{"old1", "old2"}, f.refs.removed)

	_, ok, _ := f.cache.Get(context.Background(), "old1")
	assert.Equal(t, false, ok)
}

func TestUploadReferenceImages(t *testing.T) {
	f := newFixture(bydScraper())

	paths, err := f.svc.UploadReferenceImages(context.Background(), "tmp", "BYD", "SEAL", []external.ReferenceUpload{
		{Filename: "a.jpg", ContentType: "image/jpeg", Data: strings.NewReader("x")},
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"uploads/reference/tmp/BYD/SEAL/ref_1.jpg"}, paths)

	_, err = f.svc.UploadReferenceImages(context.Background(), "tmp", "", "SEAL", nil)
	assert.Equal(t, true, errors.Is(err, ErrInvalidRequest))

	_, err = f.svc.UploadReferenceImages(context.Background(), "null", "BYD", "SEAL", nil)
	assert.Equal(t, ErrInvalidAnalysisID, err)
}

func TestRerunAnalysis(t *testing.T) {
	f := newFixture(bydScraper())
	firstID, err := f.svc.StartAnalysis(context.Background(), bydRequest())
	assert.Equal(t, nil, err)

	secondID, err := f.svc.RerunAnalysis(context.Background(), firstID)
	assert.Equal(t, nil, err)
	assert.NotEqual(t, firstID, secondID)
	assert.Equal(t, 2, f.queue.runs)

	second, err := f.svc.GetAnalysis(context.Background(), secondID)
	assert.Equal(t, nil, err)
	assert.Equal(t, models.StatusCompleted, second.Status)
	assert.Equal(t, 4, second.BrandsData["BYD"].OverallMetrics.TotalPosts)
	assert.Equal(t, map[string]models.ReferenceImageSet{
		"BYD": {"SEAL": {"uploads/reference/tmp/BYD/SEAL/ref_1.jpg"}},
	}, second.ReferenceImages)
	assert.Equal(t, f.store.brands[firstID], f.store.brands[secondID])

	_, err = f.svc.RerunAnalysis(context.Background(), "missing")
	assert.Equal(t, ErrAnalysisNotFound, err)

	// cached only, nothing saved to rebuild the request from
	f.cache.Set(context.Background(), &models.AnalysisResult{AnalysisID: "cache-only"})
	_, err = f.svc.RerunAnalysis(context.Background(), "cache-only")
	assert.Equal(t, true, errors.Is(err, ErrNoData))
}
