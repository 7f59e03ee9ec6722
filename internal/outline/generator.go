package outline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

//go:generate mockgen -source=generator.go -destination=mocks/mock_models.go -package=mocks

// TextModel produces the raw outline text.
type TextModel interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// ImageModel returns a URL of an illustration for prompt.
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	text              TextModel
	images            ImageModel
	logger            *zap.Logger
	maxTokensPerSlide int
}

// NewGenerator builds a generator. images may be nil, which produces text-only decks.
func NewGenerator(text TextModel, images ImageModel, maxTokensPerSlide int, logger *zap.Logger) *Generator {
	if maxTokensPerSlide <= 0 {
		maxTokensPerSlide = 220
	}
	return &Generator{
		text:              text,
		images:            images,
		logger:            logger.Named("outline"),
		maxTokensPerSlide: maxTokensPerSlide,
	}
}

// Generate returns an outline with exactly pages slides.
func (g *Generator) Generate(ctx context.Context, topic string, pages int) (*Outline, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if pages < MinPages || pages > MaxPages {
		return nil, fmt.Errorf("%w: %d", ErrPageCount, pages)
	}

	logger := g.logger.With(zap.String("topic", topic), zap.Int("pages", pages))
	logger.Info("Requesting outline")

	text, err := g.text.Complete(ctx, SystemPrompt, BuildPrompt(topic, pages), 300+pages*g.maxTokensPerSlide)
	if err != nil {
		return nil, fmt.Errorf("complete outline: %w", err)
	}

	raw, err := ParseResponse(text)
	if err != nil {
		logger.Warn("Model response could not be parsed", zap.Int("response_length", len(text)))
		return nil, err
	}

	out, err := Normalize(topic, pages, raw)
	if err != nil {
		logger.Warn("Model response does not fit the requested layout", zap.Int("parsed_slides", len(raw)), zap.Error(err))
		return nil, err
	}

	g.attachImages(ctx, out)
	logger.Info("Outline ready", zap.Int("slides", len(out.Slides)), zap.Int("images", out.ImageCount()))
	return out, nil
}

// Normalize maps parsed slides onto Layout(pages). Surplus slides are dropped,
// keeping the model's last slide as the conclusion.
func Normalize(topic string, pages int, raw []RawSlide) (*Outline, error) {
	if len(raw) == 0 {
		return nil, ErrUnparsableResponse
	}
	if len(raw) < pages {
		return nil, fmt.Errorf("%w: got %d of %d", ErrIncompleteOutline, len(raw), pages)
	}
	if len(raw) > pages {
		raw = append(raw[:pages-1:pages-1], raw[len(raw)-1])
	}

	kinds := Layout(pages)
	out := &Outline{Topic: topic, Slides: make([]Slide, pages)}
	for i, r := range raw {
		out.Slides[i] = buildSlide(i+1, kinds[i], topic, r)
	}
	return out, nil
}

func buildSlide(pos int, kind Kind, topic string, r RawSlide) Slide {
	s := Slide{
		Index:       pos,
		Kind:        kind,
		Title:       strings.TrimSpace(r.Title),
		ImagePrompt: strings.TrimSpace(r.ImagePrompt),
	}
	if s.Title == "" {
		s.Title = topic
	}

	switch {
	case kind == KindAgenda:
		s.Sections = r.sectionList(AgendaSections)
		if len(s.Sections) == 0 {
			s.Sections = r.bullets()
			if len(s.Sections) > AgendaSections {
				s.Sections = s.Sections[:AgendaSections]
			}
		}
		s.ImagePrompt = ""
	case kind == KindBody && IsBulletPosition(pos):
		s.Bullets = r.bullets()
	default:
		s.Paragraph = r.paragraph()
	}
	return s
}

// imageSlots returns the indexes of the first MaxImages non-agenda slides that have an image prompt.
func imageSlots(slides []Slide) []int {
	var slots []int
	for i, s := range slides {
		if len(slots) == MaxImages {
			break
		}
		if s.Kind != KindAgenda && s.ImagePrompt != "" {
			slots = append(slots, i)
		}
	}
	return slots
}

// attachImages requests illustrations concurrently. A failed image leaves its slide text-only.
func (g *Generator) attachImages(ctx context.Context, out *Outline) {
	if g.images == nil {
		return
	}

	var wg sync.WaitGroup
	for _, idx := range imageSlots(out.Slides) {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			slide := &out.Slides[idx]
			url, err := g.images.GenerateImage(ctx, slide.ImagePrompt)
			if err != nil {
				g.logger.Warn("Image generation failed, slide stays text-only",
					zap.Int("slide", slide.Index), zap.Error(err))
				return
			}
			slide.ImageURL = url
		}(idx)
	}
	wg.Wait()
}
