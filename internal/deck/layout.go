package deck

import (
	"unicode/utf8"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/outline"
)

// Slides are 16:9, measured in inches.
const (
	slideWidth  = 10.0
	slideHeight = 5.625
	margin      = 0.6
)

// Theme is a colour set in RRGGBB hex.
type Theme struct {
	Name       string
	Background string
	Panel      string
	Accent     string
	Title      string
	Text       string
}

var titleTheme = Theme{Name: "night", Background: "1F3A5F", Panel: "27496D", Accent: "F2A541", Title: "FFFFFF", Text: "DCE6F2"}

var bodyThemes = []Theme{
	{Name: "ocean", Background: "F4F8FB", Panel: "FFFFFF", Accent: "1F6FB2", Title: "17324D", Text: "2E3A46"},
	{Name: "sand", Background: "FBF7F0", Panel: "FFFFFF", Accent: "C27C2C", Title: "4A3520", Text: "3D3428"},
	{Name: "forest", Background: "F1F7F2", Panel: "FFFFFF", Accent: "2E7D4F", Title: "1E3B2A", Text: "2F3A33"},
	{Name: "plum", Background: "F7F3FA", Panel: "FFFFFF", Accent: "7A4FA0", Title: "3A2450", Text: "362F3D"},
}

// ThemeFor returns the theme of the slide at the 1-based position pos.
func ThemeFor(pos int) Theme {
	if pos == 1 {
		return titleTheme
	}
	return bodyThemes[pos%len(bodyThemes)]
}

type box struct {
	X, Y, W, H float64
}

type align int

const (
	alignLeft align = iota
	alignCenter
)

type elementKind int

const (
	rectElement elementKind = iota
	textElement
	imageElement
)

type textStyle struct {
	Size    float64 // points
	Bold    bool
	Color   string
	Align   align
	Bullets bool
}

type element struct {
	kind  elementKind
	box   box
	fill  string
	lines []string
	style textStyle
	image *Image
}

// page is a positioned rendering of one slide, shared by the PPTX and PDF writers.
type page struct {
	background string
	elements   []element
}

func (p *page) rect(b box, fill string) {
	p.elements = append(p.elements, element{kind: rectElement, box: b, fill: fill})
}

func (p *page) text(b box, style textStyle, lines ...string) {
	if len(lines) == 0 {
		return
	}
	p.elements = append(p.elements, element{kind: textElement, box: b, lines: lines, style: style})
}

func (p *page) picture(b box, img *Image) {
	p.elements = append(p.elements, element{kind: imageElement, box: fitImage(b, img), image: img})
}

// layoutSlide places the content of s. img is nil for text-only slides.
func layoutSlide(s outline.Slide, img *Image) page {
	theme := ThemeFor(s.Index)
	p := page{background: theme.Background}

	switch s.Kind {
	case outline.KindIntro:
		layoutIntro(&p, s, theme, img)
	case outline.KindAgenda:
		layoutAgenda(&p, s, theme)
	default:
		layoutBody(&p, s, theme, img)
	}
	return p
}

func layoutIntro(p *page, s outline.Slide, theme Theme, img *Image) {
	p.rect(box{0, slideHeight - 0.18, slideWidth, 0.18}, theme.Accent)

	titleBox := box{margin, 1.5, slideWidth - 2*margin, 1.5}
	subBox := box{margin, 3.1, slideWidth - 2*margin, 1.0}
	style := alignCenter
	if img != nil {
		titleBox = box{margin, 1.3, 5.2, 1.7}
		subBox = box{margin, 3.1, 5.2, 1.2}
		style = alignLeft
		p.picture(box{6.1, 0.8, 3.4, 3.9}, img)
	}

	p.rect(box{titleBox.X, titleBox.Y + titleBox.H + 0.02, 1.2, 0.05}, theme.Accent)
	p.text(titleBox, textStyle{Size: titleSize(s.Title, 36), Bold: true, Color: theme.Title, Align: style}, s.Title)
	if s.Paragraph != "" {
		p.text(subBox, textStyle{Size: 18, Color: theme.Text, Align: style}, s.Paragraph)
	}
}

func layoutAgenda(p *page, s outline.Slide, theme Theme) {
	p.rect(box{0, 0, slideWidth, 0.12}, theme.Accent)
	p.text(box{margin, 0.35, slideWidth - 2*margin, 0.8}, textStyle{Size: 30, Bold: true, Color: theme.Title}, s.Title)

	sections := s.Sections
	if len(sections) > outline.AgendaSections {
		sections = sections[:outline.AgendaSections]
	}
	n := len(sections)
	if n == 0 {
		return
	}

	const gap = 0.3
	width := (slideWidth - 2*margin - gap*float64(n-1)) / float64(n)
	for i, section := range sections {
		x := margin + float64(i)*(width+gap)
		p.rect(box{x, 1.6, width, 3.2}, theme.Panel)
		p.rect(box{x, 1.6, width, 0.08}, theme.Accent)
		p.text(box{x + 0.2, 1.85, width - 0.4, 0.7}, textStyle{Size: 28, Bold: true, Color: theme.Accent}, twoDigits(i+1))
		p.text(box{x + 0.2, 2.6, width - 0.4, 2.0}, textStyle{Size: 16, Color: theme.Text}, section)
	}
}

func layoutBody(p *page, s outline.Slide, theme Theme, img *Image) {
	p.rect(box{0, 0, slideWidth, 0.12}, theme.Accent)
	p.text(box{margin, 0.35, slideWidth - 2*margin, 0.8}, textStyle{Size: titleSize(s.Title, 28), Bold: true, Color: theme.Title}, s.Title)

	content := box{margin, 1.35, slideWidth - 2*margin, 3.9}
	if img != nil {
		content.W = 5.0
		p.picture(box{5.9, 1.35, 3.5, 3.9}, img)
	}

	if s.Kind == outline.KindConclusion {
		p.rect(box{content.X - 0.15, content.Y - 0.1, content.W + 0.3, content.H + 0.2}, theme.Panel)
		p.rect(box{content.X - 0.15, content.Y - 0.1, 0.08, content.H + 0.2}, theme.Accent)
	}

	if len(s.Bullets) > 0 {
		size := 20.0
		if len(s.Bullets) > 4 {
			size = 18
		}
		p.text(content, textStyle{Size: size, Color: theme.Text, Bullets: true}, s.Bullets...)
		return
	}
	p.text(content, textStyle{Size: paragraphSize(s.Paragraph, img != nil), Color: theme.Text}, s.Paragraph)
}

func titleSize(title string, base float64) float64 {
	switch n := utf8.RuneCountInString(title); {
	case n > 70:
		return base - 10
	case n > 45:
		return base - 6
	default:
		return base
	}
}

func paragraphSize(text string, narrow bool) float64 {
	n := utf8.RuneCountInString(text)
	if narrow {
		n = n * 7 / 4
	}
	switch {
	case n > 900:
		return 13
	case n > 600:
		return 14
	case n > 350:
		return 16
	default:
		return 18
	}
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10%10), byte('0' + n%10)})
}

// fitImage centres img inside b keeping its aspect ratio.
func fitImage(b box, img *Image) box {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return b
	}
	ratio := float64(img.Width) / float64(img.Height)
	w, h := b.W, b.W/ratio
	if h > b.H {
		h = b.H
		w = h * ratio
	}
	return box{X: b.X + (b.W-w)/2, Y: b.Y + (b.H-h)/2, W: w, H: h}
}
