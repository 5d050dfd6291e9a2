package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"social-brand-analyzer/pkg/analysis"
	"social-brand-analyzer/pkg/models"
)

// Columns is the CSV header row
var Columns = []string{
	"brand", "platform", "model", "timestamp", "engagement",
	"likes", "comments", "shares", "reactions",
	"url", "caption", "text", "hashtags", "thumbnail",
	"classification_reason", "classification_confidence",
}

// WriteCSV writes every post of brands as one CSV row. Brands are written in
// name order, Instagram rows before Facebook rows. A non-nil filter drops
// posts outside the window. It returns the number of data rows written.
func WriteCSV(w io.Writer, brands map[string]models.BrandData, filter *models.TimeFilter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}

	names := make([]string, 0, len(brands))
	for name := range brands {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := 0
	for _, name := range names {
		data := brands[name]
		for _, platformPosts := range []struct {
			platform string
			posts    []models.Post
		}{
			{models.PlatformInstagram, data.Instagram.Posts},
			{models.PlatformFacebook, data.Facebook.Posts},
		} {
			posts := platformPosts.posts
			if filter != nil {
				posts = analysis.FilterPostsByTime(posts, *filter)
			}
			for _, post := range posts {
				if err := cw.Write(postRecord(name, platformPosts.platform, post)); err != nil {
					return rows, fmt.Errorf("failed to write CSV row: %w", err)
				}
				rows++
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return rows, nil
}

func postRecord(brand, platform string, post models.Post) []string {
	model := post.Model
	if model == "" {
		model = models.Unclassified
	}

	return []string{
		brand,
		platform,
		model,
		post.Timestamp.String(),
		strconv.Itoa(post.Engagement),
		strconv.Itoa(post.Likes),
		strconv.Itoa(post.Comments),
		strconv.Itoa(post.Shares),
		strconv.Itoa(post.Reactions),
		post.URL,
		post.Caption,
		post.Text,
		strings.Join(post.Hashtags, ", "),
		post.Thumbnail,
		post.ClassificationReason,
		strconv.Itoa(post.ClassificationConfidence),
	}
}

// Filename is the download name of an analysis export
func Filename(analysisID string) string {
	short := analysisID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("social_media_analysis_%s.csv", short)
}
