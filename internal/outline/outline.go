// Package outline turns a topic and a page count into slide content using a text model,
// and picks the slides that get a generated illustration.
package outline

import "errors"

type Kind string

const (
	KindIntro      Kind = "intro"
	KindAgenda     Kind = "agenda"
	KindBody       Kind = "body"
	KindConclusion Kind = "conclusion"
)

const (
	MinPages = 5
	MaxPages = 50
	// MaxImages caps generated illustrations per deck.
	MaxImages      = 3
	AgendaSections = 3
)

var (
	ErrPageCount  = errors.New("page count out of range")
	ErrEmptyTopic = errors.New("topic is empty")
	// ErrUnparsableResponse means the model answer contained no slide markers at all.
	ErrUnparsableResponse = errors.New("model response contains no slides")
	ErrIncompleteOutline  = errors.New("model response has fewer slides than requested")
)

type Slide struct {
	// Index is the 1-based position in the deck.
	Index       int      `json:"index"`
	Kind        Kind     `json:"kind"`
	Title       string   `json:"title"`
	Bullets     []string `json:"bullets,omitempty"`
	Paragraph   string   `json:"paragraph,omitempty"`
	Sections    []string `json:"sections,omitempty"`
	ImagePrompt string   `json:"image_prompt,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
}

func (s Slide) HasImage() bool {
	return s.ImageURL != ""
}

type Outline struct {
	Topic  string  `json:"topic"`
	Slides []Slide `json:"slides"`
}

// ImageCount returns how many slides carry an illustration.
func (o *Outline) ImageCount() int {
	n := 0
	for _, s := range o.Slides {
		if s.HasImage() {
			n++
		}
	}
	return n
}

// IsBulletPosition reports whether the 1-based position holds a bullet-list body slide.
// The first two body slides use bullets, the rest use paragraphs.
func IsBulletPosition(pos int) bool {
	return pos == 3 || pos == 4
}

// Layout returns the slide kinds of a deck with pages slides:
// intro, agenda, bodies, conclusion.
func Layout(pages int) []Kind {
	if pages < 3 {
		return nil
	}
	kinds := make([]Kind, pages)
	kinds[0] = KindIntro
	kinds[1] = KindAgenda
	for i := 2; i < pages-1; i++ {
		kinds[i] = KindBody
	}
	kinds[pages-1] = KindConclusion
	return kinds
}
