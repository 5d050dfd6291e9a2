package service

import (
	"context"

	"social-brand-analyzer/pkg/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type scrapedPlatform struct {
	Posts   []models.Post
	Profile models.ProfileData
}

// scrapePlatform fetches the posts and the profile of one account at the
// same time. Failures degrade to no posts and a default profile.
func (s *Service) scrapePlatform(ctx context.Context, brand, platform, accountURL string, filter models.TimeFilter) scrapedPlatform {
	var out scrapedPlatform
	out.Posts = []models.Post{}

	postsFn, profileFn := s.scraper.InstagramPosts, s.scraper.InstagramProfile
	if platform == models.PlatformFacebook {
		postsFn, profileFn = s.scraper.FacebookPosts, s.scraper.FacebookProfile
	}

	logger := log.With().Str("brand", brand).Str("platform", platform).Str("account", accountURL).Logger()

	var g errgroup.Group

	g.Go(func() error {
		posts, err := postsFn(ctx, accountURL, filter)
		if err != nil {
			logger.Error().Err(err).Msg("failed to scrape posts")
			return nil
		}
		if posts != nil {
			out.Posts = posts
		}
		return nil
	})

	g.Go(func() error {
		profile, err := profileFn(ctx, accountURL)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to scrape profile, using defaults")
		}
		out.Profile = profile
		if out.Profile.Platform == "" {
			out.Profile.Platform = platform
		}
		return nil
	})

	g.Wait()
	return out
}
