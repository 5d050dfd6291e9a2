package analysis

import (
	"social-brand-analyzer/pkg/models"
)

// RankedPostsLimit is the size of the top and low post lists of a brand.
const RankedPostsLimit = 5

// BrandInput is the classified material for one brand
type BrandInput struct {
	InstagramProfile models.ProfileData
	FacebookProfile  models.ProfileData
	InstagramPosts   []models.Post
	FacebookPosts    []models.Post
	Keywords         []string
}

// SummarizeBrand assembles the report for one brand: per-platform and
// overall metrics plus the best and worst performing posts.
func SummarizeBrand(in BrandInput) models.BrandData {
	data := models.BrandData{
		Instagram: models.PlatformData{Profile: in.InstagramProfile, Posts: nonNil(in.InstagramPosts)},
		Facebook:  models.PlatformData{Profile: in.FacebookProfile, Posts: nonNil(in.FacebookPosts)},
		Keywords:  in.Keywords,
	}

	all := data.AllPosts()
	metrics := CalculateEngagementMetrics(all, in.Keywords)

	data.Instagram.Metrics = metrics.Instagram
	data.Facebook.Metrics = metrics.Facebook
	data.OverallMetrics = metrics.Overall
	data.TopPosts = TopPerformingPosts(all, RankedPostsLimit)
	data.LowPosts = LowPerformingPosts(all, RankedPostsLimit)
	return data
}

// FilterBrandData restricts a brand report to a time window and recomputes
// its metrics. Profiles and keywords are carried over unchanged.
func FilterBrandData(data models.BrandData, filter models.TimeFilter) (models.BrandData, FilterStats) {
	instagram, igStats := FilterPostsByTimeWithStats(data.Instagram.Posts, filter)
	facebook, fbStats := FilterPostsByTimeWithStats(data.Facebook.Posts, filter)

	stats := FilterStats{
		Kept:        igStats.Kept + fbStats.Kept,
		OutOfRange:  igStats.OutOfRange + fbStats.OutOfRange,
		Unparseable: igStats.Unparseable + fbStats.Unparseable,
	}

	return SummarizeBrand(BrandInput{
		InstagramProfile: data.Instagram.Profile,
		FacebookProfile:  data.Facebook.Profile,
		InstagramPosts:   instagram,
		FacebookPosts:    facebook,
		Keywords:         data.Keywords,
	}), stats
}

func nonNil(posts []models.Post) []models.Post {
	if posts == nil {
		return []models.Post{}
	}
	return posts
}
