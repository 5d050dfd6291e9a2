package analysis

import (
	"context"
	"time"

	"social-brand-analyzer/pkg/models"

	"github.com/rs/zerolog/log"
)

// Pacer decides how long the pipeline waits between posts. A
// *rate.Limiter from golang.org/x/time/rate satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedDelay pauses for a constant duration on every call
type FixedDelay time.Duration

// Wait blocks for d or until ctx is done, returning ctx.Err() in the
// latter case. A non-positive delay returns immediately.
func (d FixedDelay) Wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PostClassifier is the single-post operation the pipeline drives
type PostClassifier interface {
	Classify(ctx context.Context, post models.Post, platform string, target Target) models.Classification
}

// Pipeline classifies batches of posts one at a time
type Pipeline struct {
	classifier PostClassifier
	pacer      Pacer
	timeout    time.Duration
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	Pacer       Pacer
	CallTimeout time.Duration
}

// NewPipeline creates a pipeline. Without a pacer posts are spaced 500ms
// apart; without a timeout each post may take up to a minute.
func NewPipeline(classifier PostClassifier, opts PipelineOptions) *Pipeline {
	if opts.Pacer == nil {
		opts.Pacer = FixedDelay(500 * time.Millisecond)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}

	return &Pipeline{
		classifier: classifier,
		pacer:      opts.Pacer,
		timeout:    opts.CallTimeout,
	}
}

// ClassifyPosts returns a copy of posts, same length and order, with the
// classification fields of every post filled in. A failing post degrades to
// unclassified without affecting the others.
func (p *Pipeline) ClassifyPosts(ctx context.Context, posts []models.Post, target Target, platform string) []models.Post {
	classified := make([]models.Post, len(posts))
	copy(classified, posts)

	log.Info().
		Str("brand", target.Brand).
		Str("platform", platform).
		Int("posts", len(posts)).
		Msg("classifying posts")

	for i := range classified {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		result := p.classifier.Classify(callCtx, classified[i], platform, target)
		cancel()

		result.Apply(&classified[i])

		log.Debug().
			Str("brand", target.Brand).
			Str("post_id", classified[i].ID).
			Str("model", result.Model).
			Int("confidence", result.Confidence).
			Msgf("classified post %d/%d", i+1, len(classified))

		if err := p.pacer.Wait(ctx); err != nil {
			log.Debug().Err(err).Msg("pacer wait interrupted")
		}
	}

	return classified
}
