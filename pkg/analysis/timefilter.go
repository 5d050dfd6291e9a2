package analysis

import (
	"social-brand-analyzer/pkg/models"

	"github.com/rs/zerolog/log"
)

// FilterStats counts what a time filter did with its input
type FilterStats struct {
	Kept        int
	OutOfRange  int
	Unparseable int
}

// FilterPostsByTime keeps posts whose timestamp lies inside filter, bounds
// included, in their original order. Posts without a usable timestamp are
// dropped.
func FilterPostsByTime(posts []models.Post, filter models.TimeFilter) []models.Post {
	kept, _ := FilterPostsByTimeWithStats(posts, filter)
	return kept
}

// FilterPostsByTimeWithStats is FilterPostsByTime that also reports how
// many posts were dropped and why.
func FilterPostsByTimeWithStats(posts []models.Post, filter models.TimeFilter) ([]models.Post, FilterStats) {
	var stats FilterStats
	kept := make([]models.Post, 0, len(posts))

	for _, post := range posts {
		ts, ok := post.Timestamp.Time()
		if !ok {
			stats.Unparseable++
			log.Debug().
				Str("post_id", post.ID).
				Str("timestamp", post.Timestamp.String()).
				Msg("post has no usable timestamp, skipping")
			continue
		}

		if !filter.Contains(ts) {
			stats.OutOfRange++
			continue
		}

		kept = append(kept, post)
	}

	stats.Kept = len(kept)
	return kept, stats
}
