package analysis

import (
	"strings"

	"social-brand-analyzer/pkg/models"
)

// ExtractContent returns the text a classifier should read for a post and
// the hashtags that go with it.
//
// Instagram posts carry their caption and a scraper-provided hashtag list.
// Everything else uses the post text (falling back to the caption) and
// derives hashtags from '#'-prefixed tokens of that text, duplicates kept.
func ExtractContent(post models.Post, platform string) (string, []string) {
	if platform == models.PlatformInstagram {
		return post.Caption, post.Hashtags
	}

	text := post.Text
	if text == "" {
		text = post.Caption
	}
	return text, HashtagsFromText(text)
}

// HashtagsFromText collects whitespace-delimited tokens beginning with '#',
// with the leading '#' removed.
func HashtagsFromText(text string) []string {
	var hashtags []string
	for _, word := range strings.Fields(text) {
		if strings.HasPrefix(word, "#") {
			hashtags = append(hashtags, word[1:])
		}
	}
	return hashtags
}
