package external

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"social-brand-analyzer/pkg/analysis"
	"social-brand-analyzer/pkg/models"

	"github.com/rs/zerolog/log"
)

// Apify actors used for each scrape
const (
	InstagramPostsActor   = "shu8hvrXbJbY3Eb9W"
	InstagramProfileActor = "dSCLg0C3YEZ83HzYX"
	FacebookPostsActor    = "KoJrdxJCTtpon81KY"
	FacebookProfileActor  = "4Hv5RhChiaDk6iwad"
)

// ActorRunner runs an actor and returns its dataset items
type ActorRunner interface {
	RunActor(ctx context.Context, actorID string, input any) ([]json.RawMessage, error)
}

// SocialScraper collects posts and profiles from Instagram and Facebook
// through Apify actors and converts them into posts.
type SocialScraper struct {
	runner       ActorRunner
	resultsLimit int
	now          func() time.Time
}

// NewSocialScraper creates a scraper returning at most resultsLimit posts
// per account.
func NewSocialScraper(runner ActorRunner, resultsLimit int) *SocialScraper {
	if resultsLimit <= 0 {
		resultsLimit = 5
	}
	return &SocialScraper{
		runner:       runner,
		resultsLimit: resultsLimit,
		now:          time.Now,
	}
}

type instagramItem struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	Caption       string   `json:"caption"`
	Hashtags      []string `json:"hashtags"`
	LikesCount    int      `json:"likesCount"`
	CommentsCount int      `json:"commentsCount"`
	Timestamp     string   `json:"timestamp"`
	Type          string   `json:"type"`
	DisplayURL    string   `json:"displayUrl"`
	ImageURL      string   `json:"imageUrl"`
	ThumbnailSrc  string   `json:"thumbnailSrc"`
	VideoViewURL  string   `json:"videoViewUrl"`
	Images        []any    `json:"images"`
}

type facebookItem struct {
	PostID            string           `json:"postId"`
	TopLevelURL       string           `json:"topLevelUrl"`
	Text              string           `json:"text"`
	Likes             int              `json:"likes"`
	Comments          int              `json:"comments"`
	Shares            int              `json:"shares"`
	TopReactionsCount int              `json:"topReactionsCount"`
	Time              string           `json:"time"`
	Media             []map[string]any `json:"media"`
}

// InstagramPosts scrapes recent posts of an Instagram account
func (s *SocialScraper) InstagramPosts(ctx context.Context, accountURL string, filter models.TimeFilter) ([]models.Post, error) {
	input := map[string]any{
		"directUrls":         []string{accountURL},
		"resultsType":        "posts",
		"resultsLimit":       s.resultsLimit,
		"onlyPostsNewerThan": LookbackBucket(s.now(), filter.Start),
		"searchType":         "hashtag",
		"addParentData":      false,
	}

	items, err := s.runner.RunActor(ctx, InstagramPostsActor, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape Instagram posts: %w", err)
	}

	posts := make([]models.Post, 0, len(items))
	for _, raw := range items {
		var item instagramItem
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Warn().Err(err).Str("account", accountURL).Msg("skipping malformed Instagram item")
			continue
		}
		posts = append(posts, s.instagramPost(item))
	}

	log.Info().Str("account", accountURL).Int("posts", len(posts)).Msg("scraped Instagram posts")
	return posts, nil
}

func (s *SocialScraper) instagramPost(item instagramItem) models.Post {
	postType := strings.ToLower(item.Type)
	thumbnail := instagramThumbnail(item)

	var thumbnails []string
	if postType == "sidecar" {
		thumbnails = stringsOf(item.Images)
		if thumbnail != "" && !slices.Contains(thumbnails, thumbnail) {
			thumbnails = append([]string{thumbnail}, thumbnails...)
		}
	} else if thumbnail != "" {
		thumbnails = []string{thumbnail}
	}

	mediaType := "photo"
	switch postType {
	case "video":
		mediaType = "video"
	case "sidecar":
		mediaType = "carousel"
	}

	hashtags := item.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}

	return models.Post{
		ID:         item.ID,
		Platform:   models.PlatformInstagram,
		URL:        item.URL,
		Caption:    item.Caption,
		Hashtags:   hashtags,
		Likes:      item.LikesCount,
		Comments:   item.CommentsCount,
		Engagement: item.LikesCount + item.CommentsCount,
		Timestamp:  s.scrapedTimestamp(item.Timestamp),
		Thumbnail:  thumbnail,
		Thumbnails: nonNilStrings(thumbnails),
		MediaType:  mediaType,
	}
}

func instagramThumbnail(item instagramItem) string {
	var candidates []string
	switch strings.ToLower(item.Type) {
	case "video":
		candidates = []string{item.DisplayURL, item.ImageURL, item.ThumbnailSrc, item.VideoViewURL}
	case "sidecar":
		if images := stringsOf(item.Images); len(images) > 0 {
			candidates = []string{images[0], item.DisplayURL}
		} else {
			candidates = []string{item.DisplayURL, item.ImageURL}
		}
	default:
		candidates = []string{item.DisplayURL, item.ImageURL, item.ThumbnailSrc}
	}

	for _, candidate := range candidates {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return ""
}

// InstagramProfile scrapes follower counts of an Instagram account
func (s *SocialScraper) InstagramProfile(ctx context.Context, accountURL string) (models.ProfileData, error) {
	username := accountName(accountURL)
	profile := models.ProfileData{Username: username, Platform: models.PlatformInstagram}

	items, err := s.runner.RunActor(ctx, InstagramProfileActor, map[string]any{
		"usernames": []string{username},
	})
	if err != nil {
		return profile, fmt.Errorf("failed to scrape Instagram profile: %w", err)
	}
	if len(items) == 0 {
		return profile, nil
	}

	var item struct {
		Username       string `json:"username"`
		FollowersCount int    `json:"followersCount"`
		FollowingCount int    `json:"followingCount"`
		PostsCount     int    `json:"postsCount"`
	}
	if err := json.Unmarshal(items[0], &item); err != nil {
		return profile, fmt.Errorf("failed to parse Instagram profile: %w", err)
	}

	if item.Username != "" {
		profile.Username = item.Username
	}
	profile.Followers = item.FollowersCount
	profile.Following = item.FollowingCount
	profile.PostsCount = item.PostsCount
	return profile, nil
}

// FacebookPosts scrapes recent posts of a Facebook page
func (s *SocialScraper) FacebookPosts(ctx context.Context, pageURL string, filter models.TimeFilter) ([]models.Post, error) {
	input := map[string]any{
		"startUrls":          []map[string]string{{"url": pageURL}},
		"resultsLimit":       s.resultsLimit,
		"onlyPostsNewerThan": LookbackBucket(s.now(), filter.Start),
		"captionText":        false,
	}

	items, err := s.runner.RunActor(ctx, FacebookPostsActor, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape Facebook posts: %w", err)
	}

	posts := make([]models.Post, 0, len(items))
	for _, raw := range items {
		var item facebookItem
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Warn().Err(err).Str("page", pageURL).Msg("skipping malformed Facebook item")
			continue
		}
		posts = append(posts, s.facebookPost(item))
	}

	log.Info().Str("page", pageURL).Int("posts", len(posts)).Msg("scraped Facebook posts")
	return posts, nil
}

func (s *SocialScraper) facebookPost(item facebookItem) models.Post {
	hashtags := analysis.HashtagsFromText(item.Text)
	if hashtags == nil {
		hashtags = []string{}
	}

	thumbnails := []string{}
	for _, media := range item.Media {
		if thumb := facebookThumbnail(media); thumb != "" && !slices.Contains(thumbnails, thumb) {
			thumbnails = append(thumbnails, thumb)
		}
	}

	thumbnail := ""
	if len(thumbnails) > 0 {
		thumbnail = thumbnails[0]
	}

	return models.Post{
		ID:         item.PostID,
		Platform:   models.PlatformFacebook,
		URL:        item.TopLevelURL,
		Text:       item.Text,
		Caption:    item.Text,
		Hashtags:   hashtags,
		Likes:      item.Likes,
		Comments:   item.Comments,
		Shares:     item.Shares,
		Reactions:  item.TopReactionsCount,
		Engagement: item.Likes + item.Comments + item.Shares + item.TopReactionsCount,
		Timestamp:  s.scrapedTimestamp(item.Time),
		Thumbnail:  thumbnail,
		Thumbnails: thumbnails,
		MediaType:  facebookMediaType(item.Media),
	}
}

func facebookThumbnail(media map[string]any) string {
	switch media["__typename"] {
	case "Photo":
		if thumb, _ := media["thumbnail"].(string); thumb != "" {
			return thumb
		}
		return nestedURI(media["image"], "uri")
	case "Video":
		switch thumb := media["thumbnail"].(type) {
		case string:
			return thumb
		case map[string]any:
			return nestedURI(thumb, "uri", "url")
		default:
			return nestedURI(media["previewImage"], "uri")
		}
	}
	return ""
}

func facebookMediaType(media []map[string]any) string {
	if len(media) == 0 {
		return "text"
	}

	hasPhoto := false
	for _, m := range media {
		typename, _ := m["__typename"].(string)
		switch strings.ToLower(typename) {
		case "video":
			return "video"
		case "photo":
			hasPhoto = true
		}
	}

	if hasPhoto {
		if len(media) == 1 {
			return "photo"
		}
		return "carousel"
	}
	return "mixed"
}

// FacebookProfile scrapes the follower count of a Facebook page
func (s *SocialScraper) FacebookProfile(ctx context.Context, pageURL string) (models.ProfileData, error) {
	profile := models.ProfileData{Username: accountName(pageURL), Platform: models.PlatformFacebook}

	items, err := s.runner.RunActor(ctx, FacebookProfileActor, map[string]any{
		"startUrls": []map[string]string{{"url": pageURL}},
	})
	if err != nil {
		return profile, fmt.Errorf("failed to scrape Facebook profile: %w", err)
	}
	if len(items) == 0 {
		return profile, nil
	}

	var item struct {
		Name      string `json:"name"`
		Followers int    `json:"followers"`
	}
	if err := json.Unmarshal(items[0], &item); err != nil {
		return profile, fmt.Errorf("failed to parse Facebook profile: %w", err)
	}

	if item.Name != "" {
		profile.Username = item.Name
	}
	profile.Followers = item.Followers
	return profile, nil
}

// LookbackBucket maps the start of a time window to the coarse
// "onlyPostsNewerThan" values the actors accept.
func LookbackBucket(now, start time.Time) string {
	days := int(now.Sub(start).Hours() / 24)
	switch {
	case days <= 1:
		return "1 day"
	case days <= 7:
		return "1 week"
	case days <= 30:
		return "1 month"
	case days <= 90:
		return "3 months"
	default:
		return "6 months"
	}
}

// scrapedTimestamp falls back to the scrape time when the item carries no
// parseable timestamp.
func (s *SocialScraper) scrapedTimestamp(raw string) models.Timestamp {
	if raw != "" {
		if t, err := models.ParseTimestamp(raw); err == nil {
			return models.NewTimestamp(t)
		}
	}
	return models.NewTimestamp(s.now().UTC())
}

func accountName(accountURL string) string {
	trimmed := strings.TrimRight(accountURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func nestedURI(v any, keys ...string) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range keys {
		if s, _ := m[key].(string); s != "" {
			return s
		}
	}
	return ""
}

func stringsOf(values []any) []string {
	out := []string{}
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
