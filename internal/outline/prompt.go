package outline

import (
	"fmt"
	"strings"
)

const SystemPrompt = "You are an experienced teacher who prepares clear, well structured school and university presentations. " +
	"You always answer in the exact plain text format you are asked for, without markdown."

// BuildPrompt asks for exactly pages slides in the marker format understood by ParseResponse.
func BuildPrompt(topic string, pages int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Prepare a presentation on the topic \"%s\" with exactly %d slides.\n", topic, pages)
	b.WriteString("Write all titles and text in the same language as the topic. IMAGE_PROMPT values are always in English.\n\n")
	b.WriteString("Use exactly this format for every slide:\n\n")
	b.WriteString("SLIDE <number>\nTITLE: <title>\nCONTENT: <text>\nIMAGE_PROMPT: <one sentence describing an illustration>\n\n")
	b.WriteString("Slide plan:\n")

	for i, kind := range Layout(pages) {
		pos := i + 1
		switch {
		case kind == KindIntro:
			fmt.Fprintf(&b, "- SLIDE %d: title slide. TITLE is the presentation title, CONTENT is a one sentence subtitle, add an IMAGE_PROMPT.\n", pos)
		case kind == KindAgenda:
			fmt.Fprintf(&b, "- SLIDE %d: plan. Instead of CONTENT write SECTION_1:, SECTION_2: and SECTION_3: with the %d main parts. No IMAGE_PROMPT.\n", pos, AgendaSections)
		case kind == KindBody && IsBulletPosition(pos):
			fmt.Fprintf(&b, "- SLIDE %d: CONTENT is 4 or 5 lines, each starting with \"- \", each line one complete fact. Add an IMAGE_PROMPT.\n", pos)
		case kind == KindBody:
			fmt.Fprintf(&b, "- SLIDE %d: CONTENT is one paragraph of 70 to 110 words. No IMAGE_PROMPT.\n", pos)
		case kind == KindConclusion:
			fmt.Fprintf(&b, "- SLIDE %d: conclusion. CONTENT is a paragraph summarising the main ideas. No IMAGE_PROMPT.\n", pos)
		}
	}

	b.WriteString("\nDo not add any text before SLIDE 1 or after the last slide.")
	return b.String()
}
