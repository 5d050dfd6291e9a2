package analysis

import (
	"sort"
	"strings"

	"social-brand-analyzer/pkg/models"
)

// CalculateEngagementMetrics computes metrics for the Instagram subset, the
// Facebook subset and the whole set, each independently.
//
// keywords is accepted for symmetry with the classifier but does not
// influence the breakdown, which is keyed by the labels actually assigned.
func CalculateEngagementMetrics(posts []models.Post, keywords []string) models.PlatformMetrics {
	var instagram, facebook []models.Post
	for _, post := range posts {
		switch post.Platform {
		case models.PlatformInstagram:
			instagram = append(instagram, post)
		case models.PlatformFacebook:
			facebook = append(facebook, post)
		}
	}

	return models.PlatformMetrics{
		Instagram: CalculatePlatformMetrics(instagram, keywords),
		Facebook:  CalculatePlatformMetrics(facebook, keywords),
		Overall:   CalculatePlatformMetrics(posts, keywords),
	}
}

// CalculatePlatformMetrics totals engagement and breaks it down by model.
// Breakdown keys are the distinct trimmed labels; membership is matched
// case-insensitively, so labels differing only in case share posts.
func CalculatePlatformMetrics(posts []models.Post, _ []string) models.EngagementMetrics {
	metrics := models.EngagementMetrics{
		ModelBreakdown: make(map[string]models.ModelStats),
	}
	if len(posts) == 0 {
		return metrics
	}

	metrics.TotalPosts = len(posts)
	for _, post := range posts {
		metrics.TotalEngagement += post.Engagement
	}
	metrics.AverageEngagement = float64(metrics.TotalEngagement) / float64(metrics.TotalPosts)

	labels := make(map[string]struct{})
	for _, post := range posts {
		if label := strings.TrimSpace(post.Model); label != "" {
			labels[label] = struct{}{}
		}
	}

	for label := range labels {
		var modelPosts []models.Post
		engagement := 0
		for _, post := range posts {
			if strings.EqualFold(strings.TrimSpace(post.Model), label) {
				modelPosts = append(modelPosts, post)
				engagement += post.Engagement
			}
		}
		if len(modelPosts) == 0 {
			continue
		}

		rate := 0.0
		if metrics.TotalEngagement > 0 {
			rate = float64(engagement) / float64(metrics.TotalEngagement) * 100
		}

		metrics.ModelBreakdown[label] = models.ModelStats{
			PostsCount:        len(modelPosts),
			TotalEngagement:   engagement,
			AverageEngagement: float64(engagement) / float64(len(modelPosts)),
			EngagementRate:    rate,
			Posts:             modelPosts,
		}
	}

	return metrics
}

// TopPerformingPosts returns up to limit posts by descending engagement,
// ties kept in input order.
func TopPerformingPosts(posts []models.Post, limit int) []models.Post {
	return rankPosts(posts, limit, func(a, b models.Post) bool {
		return a.Engagement > b.Engagement
	})
}

// LowPerformingPosts returns up to limit posts by ascending engagement,
// ties kept in input order.
func LowPerformingPosts(posts []models.Post, limit int) []models.Post {
	return rankPosts(posts, limit, func(a, b models.Post) bool {
		return a.Engagement < b.Engagement
	})
}

func rankPosts(posts []models.Post, limit int, less func(a, b models.Post) bool) []models.Post {
	if len(posts) == 0 || limit <= 0 {
		return []models.Post{}
	}

	sorted := make([]models.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
