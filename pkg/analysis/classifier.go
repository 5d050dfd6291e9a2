package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"social-brand-analyzer/pkg/llm"
	"social-brand-analyzer/pkg/models"

	"github.com/rs/zerolog/log"
)

const (
	maxPromptTextRunes     = 800
	referencesPerModel     = 2
	maxTextPathReferences  = 6
	textPathMaxTokens      = 500
	visionPathMaxTokens    = 300
	classifierTemperature  = 0.1
	generalAutomotiveLabel = "general_automotive"
	nonAutomotiveLabel     = "non_automotive"
)

// Fixed reasons for the degraded outcomes
const (
	ReasonNoContent        = "No text or image content available"
	ReasonNoImage          = "No image available for analysis"
	ReasonImageUnavailable = "Failed to download post image"
	ReasonUnparseable      = "Failed to parse LLM response"
	ReasonMissing          = "No reason provided"
)

const textPrompt = `VEHICLE MODEL CLASSIFICATION

BRAND: %s
TARGET MODELS: %s

POST CONTENT:
Text: "%s"
Hashtags: %s

RULES:
1. If the text names a TARGET MODEL exactly or partially, answer with that target model.
2. If the text names a vehicle model that is not a target, answer with that model's name.
3. If the text is about vehicles but names no specific model, answer "` + generalAutomotiveLabel + `".
4. If the text is not about vehicles, answer "` + nonAutomotiveLabel + `".
5. If you cannot tell, answer "` + models.Unclassified + `".

Use the attached post image, if any, to support the text. Reference images are labeled with the model they show.

Reply in JSON:
{
  "model": "exact model name or category",
  "reason": "explanation citing the evidence",
  "confidence": 1-100
}`

const visionPrompt = `VISION-ONLY VEHICLE MODEL CLASSIFICATION

BRAND: %s
TARGET MODELS: %s

Identify the vehicle model shown in the first image by comparing it with the labeled reference images.

Look at:
- body shape and proportions
- badges and lettering
- grille, lights and other distinctive design elements

Reply in JSON:
{
  "model": "best matching model or ` + models.Unclassified + `",
  "reason": "explanation of the visual comparison",
  "confidence": 1-100
}`

// ImageSource prepares images for a multimodal request. Both methods
// return false instead of an error when the image cannot be used.
type ImageSource interface {
	FromURL(ctx context.Context, url string) (string, bool)
	FromFile(path string) (string, bool)
}

// Target describes what a post is being classified against
type Target struct {
	Brand      string
	Keywords   []string
	References models.ReferenceImageSet
}

// Classifier labels a single post with a vehicle model. It holds no
// per-call state and can be shared between goroutines.
type Classifier struct {
	provider llm.Provider
	images   ImageSource
}

// NewClassifier creates a classifier backed by a multimodal provider
func NewClassifier(provider llm.Provider, images ImageSource) *Classifier {
	return &Classifier{
		provider: provider,
		images:   images,
	}
}

// Classify never fails: every problem is reported as an unclassified result
// with a reason.
func (c *Classifier) Classify(ctx context.Context, post models.Post, platform string, target Target) (result models.Classification) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("post_id", post.ID).Msg("classifier panicked")
			result = unclassified(fmt.Sprintf("Classification failed: %v", r))
		}
	}()

	text, hashtags := ExtractContent(post, platform)
	hasText := strings.TrimSpace(text) != "" || len(hashtags) > 0
	hasImage := post.Thumbnail != ""

	if !hasText && !hasImage {
		return unclassified(ReasonNoContent)
	}

	if hasText {
		return c.classifyWithText(ctx, post, text, hashtags, target)
	}
	return c.classifyWithImage(ctx, post, target)
}

func (c *Classifier) classifyWithText(ctx context.Context, post models.Post, text string, hashtags []string, target Target) models.Classification {
	prompt := fmt.Sprintf(textPrompt,
		target.Brand,
		strings.Join(target.Keywords, ", "),
		truncateRunes(text, maxPromptTextRunes),
		hashtagSummary(hashtags),
	)

	parts := []llm.Part{llm.TextPart(prompt)}

	if post.Thumbnail != "" {
		if b64, ok := c.images.FromURL(ctx, post.Thumbnail); ok {
			parts = append(parts, llm.ImagePart(b64))
		}
	}

	attached := 0
models:
	for _, model := range referenceOrder(target.References, target.Keywords) {
		if attached >= maxTextPathReferences {
			break
		}
		for _, path := range firstN(target.References[model], referencesPerModel) {
			b64, ok := c.images.FromFile(path)
			if !ok {
				continue
			}
			parts = append(parts, llm.TextPart(referenceLabel(model)), llm.ImagePart(b64))
			attached++
			if attached >= maxTextPathReferences {
				break models
			}
		}
	}

	reply, err := c.provider.Complete(ctx, llm.Request{
		Parts:       parts,
		MaxTokens:   textPathMaxTokens,
		Temperature: classifierTemperature,
	})
	if err != nil {
		log.Error().Err(err).Str("post_id", post.ID).Msg("text and vision classification failed")
		return unclassified("Classification failed: " + err.Error())
	}

	return ParseClassification(reply, target.Keywords)
}

func (c *Classifier) classifyWithImage(ctx context.Context, post models.Post, target Target) models.Classification {
	if post.Thumbnail == "" {
		return unclassified(ReasonNoImage)
	}

	postImage, ok := c.images.FromURL(ctx, post.Thumbnail)
	if !ok {
		return unclassified(ReasonImageUnavailable)
	}

	prompt := fmt.Sprintf(visionPrompt, target.Brand, strings.Join(target.Keywords, ", "))
	parts := []llm.Part{llm.TextPart(prompt), llm.ImagePart(postImage)}

	for _, model := range referenceOrder(target.References, target.Keywords) {
		for _, path := range firstN(target.References[model], referencesPerModel) {
			if b64, ok := c.images.FromFile(path); ok {
				parts = append(parts, llm.TextPart(referenceLabel(model)), llm.ImagePart(b64))
			}
		}
	}

	reply, err := c.provider.Complete(ctx, llm.Request{
		Parts:       parts,
		MaxTokens:   visionPathMaxTokens,
		Temperature: classifierTemperature,
	})
	if err != nil {
		log.Error().Err(err).Str("post_id", post.ID).Msg("image-only classification failed")
		return unclassified("Image analysis failed: " + err.Error())
	}

	return ParseClassification(reply, target.Keywords)
}

// ParseClassification extracts the JSON object spanning the first '{' to
// the last '}' of a model reply. Model labels matching a keyword
// case-insensitively take the keyword's spelling.
func ParseClassification(reply string, keywords []string) models.Classification {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end == -1 {
		log.Warn().Str("reply", truncateRunes(reply, 200)).Msg("no JSON object in model reply")
		return unclassified(ReasonUnparseable)
	}
	if end < start {
		return unclassified("Parse error: closing brace precedes opening brace")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(reply[start:end+1]), &fields); err != nil {
		log.Warn().Err(err).Msg("failed to decode model reply")
		return unclassified("Parse error: " + err.Error())
	}

	model := models.Unclassified
	if raw, ok := fields["model"]; ok {
		s, isString := raw.(string)
		if !isString {
			return unclassified(fmt.Sprintf("Parse error: model must be a string, got %T", raw))
		}
		model = strings.TrimSpace(s)
	}

	reason := ReasonMissing
	switch v := fields["reason"].(type) {
	case nil:
	case string:
		reason = v
	default:
		reason = fmt.Sprint(v)
	}

	confidence := 0
	if raw, ok := fields["confidence"]; ok {
		n, err := parseConfidence(raw)
		if err != nil {
			return unclassified("Parse error: " + err.Error())
		}
		confidence = n
	}

	for _, keyword := range keywords {
		if strings.EqualFold(keyword, model) {
			model = keyword
			break
		}
	}

	return models.Classification{
		Model:      model,
		Reason:     reason,
		Confidence: confidence,
	}
}

// parseConfidence accepts a JSON number (fraction truncated) or a string
// holding an integer, and clamps the result to [0, 100].
func parseConfidence(raw any) (int, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid confidence %q", v)
		}
		f = float64(n)
	default:
		return 0, errors.New("confidence must be a number")
	}

	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	return int(f), nil
}

// referenceOrder lists models with reference images, keywords first in
// keyword order and the rest alphabetically.
func referenceOrder(refs models.ReferenceImageSet, keywords []string) []string {
	if len(refs) == 0 {
		return nil
	}

	ordered := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, keyword := range keywords {
		if _, ok := refs[keyword]; ok && !seen[keyword] {
			ordered = append(ordered, keyword)
			seen[keyword] = true
		}
	}

	var rest []string
	for model := range refs {
		if !seen[model] {
			rest = append(rest, model)
		}
	}
	sort.Strings(rest)

	return append(ordered, rest...)
}

func referenceLabel(model string) string {
	return fmt.Sprintf("Reference for %s:", model)
}

func hashtagSummary(hashtags []string) string {
	if len(hashtags) == 0 {
		return "No hashtags"
	}
	tagged := make([]string, len(hashtags))
	for i, tag := range hashtags {
		tagged[i] = "#" + tag
	}
	return strings.Join(tagged, " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstN(paths []string, n int) []string {
	if len(paths) > n {
		return paths[:n]
	}
	return paths
}

func unclassified(reason string) models.Classification {
	return models.Classification{
		Model:      models.Unclassified,
		Reason:     reason,
		Confidence: 0,
	}
}
