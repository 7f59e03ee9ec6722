package outline

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// RawSlide is one slide as written by the model, before it is mapped onto the layout.
type RawSlide struct {
	Number      int
	Title       string
	Content     []string
	ImagePrompt string
	Sections    map[int]string
}

var (
	slideMarker = regexp.MustCompile(`(?i)^slide\s*(\d+)\s*[:.)-]?\s*(.*)$`)
	fieldMarker = regexp.MustCompile(`(?i)^(title|content|image_prompt|image prompt|section[_ ]?(\d+))\s*:\s*(.*)$`)
	listMarker  = regexp.MustCompile(`^(?:[-•*–]|\d{1,2}[.)])\s+`)
)

type field int

const (
	fieldNone field = iota
	fieldTitle
	fieldContent
	fieldImage
)

// ParseResponse reads the SLIDE/TITLE/CONTENT/IMAGE_PROMPT/SECTION_n format.
// Text before the first SLIDE marker is ignored.
func ParseResponse(text string) ([]RawSlide, error) {
	var (
		slides  []RawSlide
		current *RawSlide
		last    field
	)

	flush := func() {
		if current != nil && (current.Title != "" || len(current.Content) > 0 || len(current.Sections) > 0) {
			slides = append(slides, *current)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = cleanLine(line)
		if line == "" {
			continue
		}

		if m := slideMarker.FindStringSubmatch(line); m != nil {
			flush()
			n, _ := strconv.Atoi(m[1])
			current = &RawSlide{Number: n, Sections: map[int]string{}}
			last = fieldNone
			// "SLIDE 3: Title" without a TITLE line
			if rest := strings.TrimSpace(m[2]); rest != "" {
				current.Title = rest
				last = fieldTitle
			}
			continue
		}
		if current == nil {
			continue
		}

		if m := fieldMarker.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(m[3])
			name := strings.ToLower(m[1])
			switch {
			case name == "title":
				current.Title = value
				last = fieldTitle
			case name == "content":
				if value != "" {
					current.Content = append(current.Content, value)
				}
				last = fieldContent
			case name == "image_prompt" || name == "image prompt":
				current.ImagePrompt = value
				last = fieldImage
			default:
				idx, _ := strconv.Atoi(m[2])
				if value != "" {
					current.Sections[idx] = value
				}
				last = fieldNone
			}
			continue
		}

		switch last {
		case fieldContent, fieldTitle:
			current.Content = append(current.Content, line)
			last = fieldContent
		case fieldImage:
			current.ImagePrompt = strings.TrimSpace(current.ImagePrompt + " " + line)
		}
	}
	flush()

	if len(slides) == 0 {
		return nil, ErrUnparsableResponse
	}
	return slides, nil
}

// cleanLine drops markdown emphasis and heading marks that models add around markers.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.ReplaceAll(line, "**", "")
	line = strings.TrimLeft(line, "# ")
	return strings.TrimSpace(line)
}

// sectionList returns the SECTION_n values in order, at most limit of them.
func (r RawSlide) sectionList(limit int) []string {
	keys := make([]int, 0, len(r.Sections))
	for k := range r.Sections {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]string, 0, limit)
	for _, k := range keys {
		if len(out) == limit {
			break
		}
		out = append(out, r.Sections[k])
	}
	return out
}

// bullets strips list markers from content lines.
func (r RawSlide) bullets() []string {
	out := make([]string, 0, len(r.Content))
	for _, line := range r.Content {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 1 {
		if parts := splitSentences(out[0]); len(parts) > 1 {
			return parts
		}
	}
	return out
}

func (r RawSlide) paragraph() string {
	return strings.Join(r.bullets(), " ")
}

func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.SplitAfter(text, ". ") {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) > 0 {
			out = append(out, part)
		}
	}
	return out
}
