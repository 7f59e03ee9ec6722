package outline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/outline/mocks"
)

// modelAnswer renders a well formed answer with n slides. Every non-agenda slide up to
// promptsUntil carries an image prompt.
func modelAnswer(n, promptsUntil int) string {
	var b strings.Builder
	b.WriteString("Mana taqdimot:\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "**SLIDE %d**\n", i)
		switch {
		case i == 1:
			b.WriteString("TITLE: Interstellar\nCONTENT: Kino haqida qisqacha\n")
		case i == 2:
			b.WriteString("TITLE: Reja\nSECTION_1: Syujet\nSECTION_2: Ilmiy asos\nSECTION_3: Tanqid\n")
		case i == 3 || i == 4:
			fmt.Fprintf(&b, "TITLE: Bo'lim %d\nCONTENT:\n- Birinchi fakt\n- Ikkinchi fakt\n- Uchinchi fakt\n", i)
		default:
			fmt.Fprintf(&b, "TITLE: Sarlavha %d\nCONTENT: Bu paragraf matni.\nDavomi shu yerda.\n", i)
		}
		if i != 2 && i <= promptsUntil {
			fmt.Fprintf(&b, "IMAGE_PROMPT: illustration number %d\n", i)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestLayout(t *testing.T) {
	assert.Equal(t, []Kind{KindIntro, KindAgenda, KindBody, KindBody, KindConclusion}, Layout(5))

	kinds := Layout(12)
	require.Len(t, kinds, 12)
	assert.Equal(t, KindIntro, kinds[0])
	assert.Equal(t, KindAgenda, kinds[1])
	assert.Equal(t, KindConclusion, kinds[11])
	for _, k := range kinds[2:11] {
		assert.Equal(t, KindBody, k)
	}
	assert.Nil(t, Layout(2))
}

func TestParseResponse(t *testing.T) {
	raw, err := ParseResponse(modelAnswer(6, 6))
	require.NoError(t, err)
	require.Len(t, raw, 6)

	assert.Equal(t, 1, raw[0].Number)
	assert.Equal(t, "Interstellar", raw[0].Title)
	assert.Equal(t, []string{"Kino haqida qisqacha"}, raw[0].Content)
	assert.Equal(t, "illustration number 1", raw[0].ImagePrompt)

	assert.Equal(t, []string{"Syujet", "Ilmiy asos", "Tanqid"}, raw[1].sectionList(3))
	assert.Equal(t, []string{"Birinchi fakt", "Ikkinchi fakt", "Uchinchi fakt"}, raw[2].bullets())
	assert.Equal(t, "Bu paragraf matni. Davomi shu yerda.", raw[4].paragraph())
}

func TestParseResponseTolerantFormats(t *testing.T) {
	text := "### SLIDE 1: Kirish\nQuyosh tizimi haqida.\n\nSlide 2\nTitle: Reja\nSection 1: Sayyoralar\nSECTION_2: Yo'ldoshlar\n" +
		"SLIDE 3\nTITLE: Faktlar\nCONTENT: 1. Quyosh yulduz. 2) Yer uchinchi sayyora.\nImage prompt: the sun\nin watercolor\n"

	raw, err := ParseResponse(text)
	require.NoError(t, err)
	require.Len(t, raw, 3)

	assert.Equal(t, "Kirish", raw[0].Title)
	assert.Equal(t, []string{"Quyosh tizimi haqida."}, raw[0].Content)
	assert.Equal(t, []string{"Sayyoralar", "Yo'ldoshlar"}, raw[1].sectionList(3))
	assert.Equal(t, "the sun in watercolor", raw[2].ImagePrompt)
}

func TestParseResponseWithoutSlides(t *testing.T) {
	_, err := ParseResponse("Kechirasiz, men bu mavzuda yordam bera olmayman.")
	assert.ErrorIs(t, err, ErrUnparsableResponse)

	_, err = ParseResponse("")
	assert.ErrorIs(t, err, ErrUnparsableResponse)
}

func TestNormalize(t *testing.T) {
	raw, err := ParseResponse(modelAnswer(7, 0))
	require.NoError(t, err)

	out, err := Normalize("Interstellar - kino haqida", 7, raw)
	require.NoError(t, err)
	require.Len(t, out.Slides, 7)

	assert.Equal(t, KindIntro, out.Slides[0].Kind)
	assert.Equal(t, "Kino haqida qisqacha", out.Slides[0].Paragraph)
	assert.Equal(t, []string{"Syujet", "Ilmiy asos", "Tanqid"}, out.Slides[1].Sections)
	assert.Len(t, out.Slides[2].Bullets, 3)
	assert.Len(t, out.Slides[3].Bullets, 3)
	assert.Empty(t, out.Slides[4].Bullets)
	assert.NotEmpty(t, out.Slides[4].Paragraph)
	assert.Equal(t, KindConclusion, out.Slides[6].Kind)
	for i, s := range out.Slides {
		assert.Equal(t, i+1, s.Index)
	}
}

func TestNormalizeTrimsSurplusKeepingConclusion(t *testing.T) {
	raw, err := ParseResponse(modelAnswer(9, 0))
	require.NoError(t, err)

	out, err := Normalize("mavzu nomi uzun", 6, raw)
	require.NoError(t, err)
	require.Len(t, out.Slides, 6)
	assert.Equal(t, "Sarlavha 9", out.Slides[5].Title)
	assert.Equal(t, KindConclusion, out.Slides[5].Kind)
}

func TestNormalizeShortResponseFails(t *testing.T) {
	raw, err := ParseResponse(modelAnswer(4, 0))
	require.NoError(t, err)

	_, err = Normalize("mavzu nomi uzun", 5, raw)
	assert.ErrorIs(t, err, ErrIncompleteOutline)

	_, err = Normalize("mavzu nomi uzun", 5, nil)
	assert.ErrorIs(t, err, ErrUnparsableResponse)
}

func TestNormalizeFallsBackToTopicTitleAndContentSections(t *testing.T) {
	raw := []RawSlide{
		{Content: []string{"subtitle"}},
		{Title: "Reja", Content: []string{"- a", "- b", "- c", "- d"}},
		{Title: "x"}, {Title: "y"}, {Title: "z"},
	}
	out, err := Normalize("Mavzu sarlavhasi", 5, raw)
	require.NoError(t, err)
	assert.Equal(t, "Mavzu sarlavhasi", out.Slides[0].Title)
	assert.Equal(t, []string{"a", "b", "c"}, out.Slides[1].Sections)
}

func TestGenerateSlideCountForEveryPageCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	text := mocks.NewMockTextModel(ctrl)

	for pages := MinPages; pages <= MaxPages; pages++ {
		text.EXPECT().
			Complete(gomock.Any(), SystemPrompt, BuildPrompt("Interstellar - kino haqida", pages), 300+pages*220).
			Return(modelAnswer(pages, 0), nil)

		out, err := NewGenerator(text, nil, 0, zap.NewNop()).Generate(context.Background(), "Interstellar - kino haqida", pages)
		require.NoError(t, err, "pages=%d", pages)
		assert.Len(t, out.Slides, pages, "pages=%d", pages)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	g := NewGenerator(mocks.NewMockTextModel(ctrl), nil, 0, zap.NewNop())

	for _, pages := range []int{0, 1, 4, 51} {
		_, err := g.Generate(context.Background(), "Interstellar - kino haqida", pages)
		assert.ErrorIs(t, err, ErrPageCount, "pages=%d", pages)
	}
	_, err := g.Generate(context.Background(), "   ", 10)
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestGenerateWrapsModelErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	text := mocks.NewMockTextModel(ctrl)
	boom := errors.New("upstream timeout")
	text.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", boom)

	_, err := NewGenerator(text, nil, 0, zap.NewNop()).Generate(context.Background(), "Interstellar - kino haqida", 5)
	assert.ErrorIs(t, err, boom)
}

func TestGenerateUnparsableResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	text := mocks.NewMockTextModel(ctrl)
	text.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("no markers here", nil)

	_, err := NewGenerator(text, nil, 0, zap.NewNop()).Generate(context.Background(), "Interstellar - kino haqida", 5)
	assert.ErrorIs(t, err, ErrUnparsableResponse)
}

func TestGenerateAttachesAtMostThreeImages(t *testing.T) {
	ctrl := gomock.NewController(t)
	text := mocks.NewMockTextModel(ctrl)
	images := mocks.NewMockImageModel(ctrl)

	text.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(modelAnswer(10, 10), nil)
	images.EXPECT().GenerateImage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			return "https://img.example/" + strings.ReplaceAll(prompt, " ", "_") + ".png", nil
		}).Times(MaxImages)

	out, err := NewGenerator(text, images, 0, zap.NewNop()).Generate(context.Background(), "Interstellar - kino haqida", 10)
	require.NoError(t, err)

	assert.Equal(t, MaxImages, out.ImageCount())
	assert.True(t, out.Slides[0].HasImage())
	assert.False(t, out.Slides[1].HasImage(), "agenda never gets an image")
	assert.True(t, out.Slides[2].HasImage())
	assert.True(t, out.Slides[3].HasImage())
	assert.False(t, out.Slides[4].HasImage())
}

func TestGenerateImageFailureDegradesToText(t *testing.T) {
	ctrl := gomock.NewController(t)
	text := mocks.NewMockTextModel(ctrl)
	images := mocks.NewMockImageModel(ctrl)

	text.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(modelAnswer(5, 5), nil)
	images.EXPECT().GenerateImage(gomock.Any(), "illustration number 1").Return("https://img.example/1.png", nil)
	images.EXPECT().GenerateImage(gomock.Any(), "illustration number 3").Return("", errors.New("content policy"))
	images.EXPECT().GenerateImage(gomock.Any(), "illustration number 4").Return("https://img.example/4.png", nil)

	out, err := NewGenerator(text, images, 0, zap.NewNop()).Generate(context.Background(), "Interstellar - kino haqida", 5)
	require.NoError(t, err)
	require.Len(t, out.Slides, 5)
	assert.Equal(t, 2, out.ImageCount())
	assert.False(t, out.Slides[2].HasImage())
	assert.NotEmpty(t, out.Slides[2].Bullets)
}

func TestBuildPromptMentionsEverySlide(t *testing.T) {
	p := BuildPrompt("Quyosh tizimi", 8)
	assert.Contains(t, p, `"Quyosh tizimi"`)
	assert.Contains(t, p, "exactly 8 slides")
	for i := 1; i <= 8; i++ {
		assert.Contains(t, p, fmt.Sprintf("- SLIDE %d:", i))
	}
	assert.Contains(t, p, "SECTION_1")
}
