package deck

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/go-pdf/fpdf"
)

// DejaVu Sans covers Latin, Cyrillic and the U+02BB modifier used in Uzbek Latin.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	dejaVuRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	dejaVuBold []byte
)

const pdfFontFamily = "deck"

type pdfRenderer struct {
	pdf    *fpdf.Fpdf
	images int
}

// newPDFRenderer prepares a document with a UTF-8 font. fontPath overrides the
// bundled DejaVu font for both regular and bold text.
func newPDFRenderer(title, fontPath string) (*pdfRenderer, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "in",
		Size:           fpdf.SizeType{Wd: slideWidth, Ht: slideHeight},
	})
	pdf.SetTitle(title, true)
	pdf.SetCreator("Slide Bot", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)

	regular, bold := dejaVuRegular, dejaVuBold
	if fontPath != "" {
		data, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("load pdf font %q: %w", fontPath, err)
		}
		regular, bold = data, data
	}
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "", regular)
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "B", bold)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load pdf font %q: %w", fontPath, err)
	}
	return &pdfRenderer{pdf: pdf}, nil
}

// writePDF renders the same pages as the PPTX.
func writePDF(path, title string, pages []page, fontPath string) error {
	r, err := newPDFRenderer(title, fontPath)
	if err != nil {
		return err
	}
	for _, pg := range pages {
		r.page(pg)
	}
	if err := r.pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (r *pdfRenderer) page(pg page) {
	r.pdf.AddPage()
	r.setFill(pg.background)
	r.pdf.Rect(0, 0, slideWidth, slideHeight, "F")

	for _, el := range pg.elements {
		switch el.kind {
		case rectElement:
			r.setFill(el.fill)
			r.pdf.Rect(el.box.X, el.box.Y, el.box.W, el.box.H, "F")
		case textElement:
			r.text(el)
		case imageElement:
			r.image(el)
		}
	}
}

func (r *pdfRenderer) text(el element) {
	style := ""
	if el.style.Bold {
		style = "B"
	}
	r.pdf.SetFont(pdfFontFamily, style, el.style.Size)
	cr, cg, cb := hexRGB(el.style.Color)
	r.pdf.SetTextColor(cr, cg, cb)

	alignStr := "L"
	if el.style.Align == alignCenter {
		alignStr = "C"
	}

	const pad, bulletIndent = 0.1, 0.3
	lineH := el.style.Size / 72 * 1.25
	b := el.box

	r.pdf.ClipRect(b.X, b.Y, b.W, b.H, false)
	y := b.Y + pad
	for _, line := range el.lines {
		x, w := b.X+pad, b.W-2*pad
		if el.style.Bullets {
			r.pdf.SetXY(x, y)
			r.pdf.CellFormat(bulletIndent, lineH, "•", "", 0, "L", false, 0, "")
			x += bulletIndent
			w -= bulletIndent
		}
		r.pdf.SetXY(x, y)
		r.pdf.MultiCell(w, lineH, line, "", alignStr, false)
		y = r.pdf.GetY()
		if el.style.Bullets {
			y += lineH * 0.4
		}
	}
	r.pdf.ClipEnd()
}

func (r *pdfRenderer) image(el element) {
	if r.pdf.Err() {
		return
	}
	r.images++
	name := "img" + strconv.Itoa(r.images)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	if el.image.Format == "jpeg" {
		opts.ImageType = "JPG"
	}

	r.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(el.image.Data))
	if r.pdf.Err() {
		// 16-bit PNG and similar encodings are not supported; the slide keeps its text.
		r.pdf.ClearError()
		return
	}
	r.pdf.ImageOptions(name, el.box.X, el.box.Y, el.box.W, el.box.H, false, opts, 0, "")
}

func (r *pdfRenderer) setFill(hex string) {
	cr, cg, cb := hexRGB(hex)
	r.pdf.SetFillColor(cr, cg, cb)
}

func hexRGB(hex string) (int, int, int) {
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int((v >> 16) & 0xFF), int((v >> 8) & 0xFF), int(v & 0xFF)
}
