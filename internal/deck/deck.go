// Package deck renders an outline into a PPTX file and, for tariffs that include it, a PDF.
package deck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/outline"
)

var ErrEmptyOutline = errors.New("outline has no slides")

const maxNameRunes = 40

type Request struct {
	Outline *outline.Outline
	WithPDF bool
}

type Result struct {
	// Dir is the job directory holding Files.
	Dir    string
	Files  []string
	Images int
}

type Assembler struct {
	outputDir string
	fetcher   ImageFetcher
	fontPath  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssembler writes decks below outputDir. fetcher may be nil, in which case image URLs are ignored.
func NewAssembler(outputDir string, fetcher ImageFetcher, fontPath string, logger *zap.Logger) *Assembler {
	return &Assembler{
		outputDir: outputDir,
		fetcher:   fetcher,
		fontPath:  fontPath,
		logger:    logger.Named("deck"),
		now:       time.Now,
	}
}

// Build writes the deck into a fresh job directory. A failed image download only drops that image.
func (a *Assembler) Build(ctx context.Context, req Request) (*Result, error) {
	if req.Outline == nil || len(req.Outline.Slides) == 0 {
		return nil, ErrEmptyOutline
	}

	dir := filepath.Join(a.outputDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}

	images := a.fetchImages(ctx, req.Outline.Slides)
	pages := make([]page, len(req.Outline.Slides))
	for i, s := range req.Outline.Slides {
		pages[i] = layoutSlide(s, images[i])
	}

	created := a.now()
	res := &Result{Dir: dir, Images: len(images)}

	pptxPath := filepath.Join(dir, FileName(req.Outline.Topic, ".pptx", created))
	if err := writePPTX(pptxPath, req.Outline.Topic, pages, created); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	res.Files = append(res.Files, pptxPath)

	if req.WithPDF {
		pdfPath := filepath.Join(dir, FileName(req.Outline.Topic, ".pdf", created))
		if err := writePDF(pdfPath, req.Outline.Topic, pages, a.fontPath); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		res.Files = append(res.Files, pdfPath)
	}

	a.logger.Info("Deck assembled",
		zap.String("dir", dir),
		zap.Int("slides", len(pages)),
		zap.Int("images", res.Images),
		zap.Strings("files", res.Files))
	return res, nil
}

func (a *Assembler) fetchImages(ctx context.Context, slides []outline.Slide) map[int]*Image {
	images := make(map[int]*Image)
	if a.fetcher == nil {
		return images
	}
	for i, s := range slides {
		if !s.HasImage() {
			continue
		}
		img, err := a.fetcher.Fetch(ctx, s.ImageURL)
		if err != nil {
			a.logger.Warn("Image download failed, slide stays text-only",
				zap.Int("slide", s.Index), zap.Error(err))
			continue
		}
		images[i] = img
	}
	return images
}

// FileName builds "<topic>_YYYYMMDD_HHMMSS<ext>" from the letters and digits of topic.
func FileName(topic, ext string, t time.Time) string {
	words := strings.FieldsFunc(topic, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	base := []rune(strings.Join(words, "_"))
	if len(base) > maxNameRunes {
		base = base[:maxNameRunes]
	}
	name := strings.TrimRight(string(base), "_")
	if name == "" {
		name = "presentation"
	}
	return name + "_" + t.Format("20060102_150405") + ext
}

// Sweep removes entries of dir older than maxAge and returns how many were removed.
func Sweep(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read output dir: %w", err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
