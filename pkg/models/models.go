package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Platforms
const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
)

// Analysis statuses
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Unclassified is the label for posts the classifier could not place.
const Unclassified = "unclassified"

// Post represents one scraped social media post
type Post struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	URL        string    `json:"url"`
	Text       string    `json:"text,omitempty"`
	Caption    string    `json:"caption"`
	Hashtags   []string  `json:"hashtags"`
	Likes      int       `json:"likes"`
	Comments   int       `json:"comments"`
	Shares     int       `json:"shares"`
	Reactions  int       `json:"reactions"`
	Engagement int       `json:"engagement"`
	Timestamp  Timestamp `json:"timestamp"`
	Thumbnail  string    `json:"thumbnail"`
	Thumbnails []string  `json:"thumbnails"`
	MediaType  string    `json:"media_type"`
	Brand      string    `json:"brand,omitempty"`

	Model                    string `json:"model"`
	ClassificationReason     string `json:"classification_reason,omitempty"`
	ClassificationConfidence int    `json:"classification_confidence"`
}

// Classification is the outcome of classifying one post
type Classification struct {
	Model      string `json:"model"`
	Reason     string `json:"reason"`
	Confidence int    `json:"confidence"`
}

// Apply copies the classification onto the post.
func (c Classification) Apply(p *Post) {
	p.Model = c.Model
	p.ClassificationReason = c.Reason
	p.ClassificationConfidence = c.Confidence
}

// BrandConfig holds per-brand account URLs and the target model keywords
type BrandConfig struct {
	InstagramURL string   `json:"instagram_url" yaml:"instagram_url"`
	FacebookURL  string   `json:"facebook_url" yaml:"facebook_url"`
	Keywords     []string `json:"keywords" yaml:"keywords"`
}

// Validate checks that every required field is present.
func (b BrandConfig) Validate() error {
	if b.InstagramURL == "" {
		return errors.New("instagram_url is required")
	}
	if b.FacebookURL == "" {
		return errors.New("facebook_url is required")
	}
	if len(b.Keywords) == 0 {
		return errors.New("at least one keyword is required")
	}
	return nil
}

// ReferenceImageSet maps a model name to local reference image paths
type ReferenceImageSet map[string][]string

// MaxReferenceImagesPerModel bounds uploads per model.
const MaxReferenceImagesPerModel = 3

// ModelStats is the engagement breakdown for one model label
type ModelStats struct {
	PostsCount        int     `json:"posts_count"`
	TotalEngagement   int     `json:"total_engagement"`
	AverageEngagement float64 `json:"average_engagement"`
	EngagementRate    float64 `json:"engagement_rate"`
	Posts             []Post  `json:"posts"`
}

// EngagementMetrics summarizes a set of posts
type EngagementMetrics struct {
	TotalPosts        int                   `json:"total_posts"`
	TotalEngagement   int                   `json:"total_engagement"`
	AverageEngagement float64               `json:"average_engagement"`
	ModelBreakdown    map[string]ModelStats `json:"model_breakdown"`
}

// PlatformMetrics holds per-platform and overall metrics
type PlatformMetrics struct {
	Instagram EngagementMetrics `json:"instagram"`
	Facebook  EngagementMetrics `json:"facebook"`
	Overall   EngagementMetrics `json:"overall"`
}

// TimeFilter is an inclusive time window
type TimeFilter struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// Validate reports a window whose start is after its end.
func (f TimeFilter) Validate() error {
	if f.Start.IsZero() || f.End.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if f.Start.After(f.End) {
		return errors.New("start_date must not be after end_date")
	}
	return nil
}

// Contains reports whether t falls inside the window, bounds included.
func (f TimeFilter) Contains(t time.Time) bool {
	return !t.Before(f.Start) && !t.After(f.End)
}

func (f *TimeFilter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start_date"`
		End   string `json:"end_date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	start, err := ParseTimestamp(raw.Start)
	if err != nil {
		return errors.New("invalid start_date: " + err.Error())
	}
	end, err := ParseTimestamp(raw.End)
	if err != nil {
		return errors.New("invalid end_date: " + err.Error())
	}

	f.Start = start
	f.End = end
	return nil
}

// ProfileData is the account summary returned by the scraper
type ProfileData struct {
	Username   string `json:"username"`
	Followers  int    `json:"followers"`
	Following  int    `json:"following"`
	PostsCount int    `json:"posts_count"`
	Platform   string `json:"platform"`
}

// PlatformData groups one platform's profile, posts and metrics
type PlatformData struct {
	Profile ProfileData       `json:"profile"`
	Posts   []Post            `json:"posts"`
	Metrics EngagementMetrics `json:"metrics"`
}

// BrandData is the analysis output for one brand
type BrandData struct {
	Instagram      PlatformData      `json:"instagram"`
	Facebook       PlatformData      `json:"facebook"`
	OverallMetrics EngagementMetrics `json:"overall_metrics"`
	TopPosts       []Post            `json:"top_posts"`
	LowPosts       []Post            `json:"low_posts"`
	Keywords       []string          `json:"keywords"`
}

// AllPosts returns Instagram posts followed by Facebook posts.
func (b BrandData) AllPosts() []Post {
	posts := make([]Post, 0, len(b.Instagram.Posts)+len(b.Facebook.Posts))
	posts = append(posts, b.Instagram.Posts...)
	return append(posts, b.Facebook.Posts...)
}

// AnalysisResult is the status document polled by clients
type AnalysisResult struct {
	AnalysisID      string                       `json:"analysis_id"`
	Status          string                       `json:"status"`
	Progress        int                          `json:"progress"`
	Message         string                       `json:"message"`
	BrandsData      map[string]BrandData         `json:"brands_data"`
	UniversalFilter *TimeFilter                  `json:"universal_filter,omitempty"`
	ReferenceImages map[string]ReferenceImageSet `json:"reference_images,omitempty"`
	CreatedAt       time.Time                    `json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

// Clone returns a copy that can be mutated without touching the original
// document's top-level fields or brand map.
func (r *AnalysisResult) Clone() *AnalysisResult {
	out := *r
	out.BrandsData = make(map[string]BrandData, len(r.BrandsData))
	for name, data := range r.BrandsData {
		out.BrandsData[name] = data
	}
	return &out
}

// AnalysisSummary is a row of the recent analyses list
type AnalysisSummary struct {
	AnalysisID string    `json:"analysis_id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	BrandCount int       `json:"brand_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FilteredResults is the response of a retroactive time filter
type FilteredResults struct {
	FilteredResults map[string]BrandData `json:"filtered_results"`
	TimeFilter      TimeFilter           `json:"time_filter"`
}
