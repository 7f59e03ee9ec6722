package deck

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type pptxWriter struct {
	zw    *zip.Writer
	media int
}

// writePPTX stores pages as a PowerPoint package at path.
func writePPTX(path, title string, pages []page, created time.Time) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pptx: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close pptx: %w", cerr)
		}
	}()
	return encodePPTX(f, title, pages, created)
}

func encodePPTX(w io.Writer, title string, pages []page, created time.Time) error {
	pw := &pptxWriter{zw: zip.NewWriter(w)}
	n := len(pages)

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypes(n)},
		{"_rels/.rels", rootRels},
		{"docProps/core.xml", coreProps(title, created)},
		{"docProps/app.xml", appProps(n)},
		{"ppt/presentation.xml", presentation(n)},
		{"ppt/_rels/presentation.xml.rels", presentationRels(n)},
		{"ppt/presProps.xml", presProps},
		{"ppt/viewProps.xml", viewProps},
		{"ppt/tableStyles.xml", tableStyles},
		{"ppt/slideMasters/slideMaster1.xml", slideMaster},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRels},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayout},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRels},
		{"ppt/theme/theme1.xml", themePart},
	}
	for _, p := range parts {
		if err := pw.put(p.name, []byte(p.body)); err != nil {
			return err
		}
	}

	for i, pg := range pages {
		if err := pw.slide(i+1, pg); err != nil {
			return err
		}
	}
	if err := pw.zw.Close(); err != nil {
		return fmt.Errorf("finish pptx: %w", err)
	}
	return nil
}

func (pw *pptxWriter) put(name string, data []byte) error {
	w, err := pw.zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (pw *pptxWriter) slide(num int, pg page) error {
	rels := []string{relationship("rId1", "slideLayout", "../slideLayouts/slideLayout1.xml")}

	var b strings.Builder
	b.WriteString(xmlHeader + `<p:sld ` + nsAll + `><p:cSld>`)
	fmt.Fprintf(&b, `<p:bg><p:bgPr><a:solidFill><a:srgbClr val="%s"/></a:solidFill><a:effectLst/></p:bgPr></p:bg>`, pg.background)
	b.WriteString(`<p:spTree>` + emptyTree)

	for i, el := range pg.elements {
		id := i + 2
		switch el.kind {
		case imageElement:
			pw.media++
			name := fmt.Sprintf("image%d.%s", pw.media, el.image.Ext())
			if err := pw.put("ppt/media/"+name, el.image.Data); err != nil {
				return err
			}
			rid := fmt.Sprintf("rId%d", len(rels)+1)
			rels = append(rels, relationship(rid, "image", "../media/"+name))
			writePicture(&b, id, rid, el.box)
		default:
			writeShape(&b, id, el)
		}
	}
	b.WriteString(`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)

	if err := pw.put(fmt.Sprintf("ppt/slides/slide%d.xml", num), []byte(b.String())); err != nil {
		return err
	}
	relsXML := xmlHeader + `<Relationships xmlns="` + relsNS + `">` + strings.Join(rels, "") + `</Relationships>`
	return pw.put(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", num), []byte(relsXML))
}

func writeShape(b *strings.Builder, id int, el element) {
	txBox := ""
	if el.kind == textElement {
		txBox = ` txBox="1"`
	}
	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Shape %d"/><p:cNvSpPr%s/><p:nvPr/></p:nvSpPr>`, id, id, txBox)
	b.WriteString(`<p:spPr>` + xfrm(el.box) + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom>`)
	if el.fill != "" {
		fmt.Fprintf(b, `<a:solidFill><a:srgbClr val="%s"/></a:solidFill>`, el.fill)
	} else {
		b.WriteString(`<a:noFill/>`)
	}
	b.WriteString(`<a:ln><a:noFill/></a:ln></p:spPr>`)
	if el.kind == textElement {
		writeText(b, el)
	}
	b.WriteString(`</p:sp>`)
}

func writeText(b *strings.Builder, el element) {
	b.WriteString(`<p:txBody><a:bodyPr wrap="square" lIns="91440" tIns="45720" rIns="91440" bIns="45720" anchor="t">` +
		`<a:normAutofit/></a:bodyPr><a:lstStyle/>`)

	algn := "l"
	if el.style.Align == alignCenter {
		algn = "ctr"
	}
	bold := ""
	if el.style.Bold {
		bold = ` b="1"`
	}

	for _, line := range el.lines {
		if el.style.Bullets {
			fmt.Fprintf(b, `<a:p><a:pPr marL="342900" indent="-342900" algn="%s"><a:spcBef><a:spcPts val="600"/></a:spcBef>`+
				`<a:buFont typeface="Arial"/><a:buChar char="•"/></a:pPr>`, algn)
		} else {
			fmt.Fprintf(b, `<a:p><a:pPr algn="%s"><a:buNone/></a:pPr>`, algn)
		}
		fmt.Fprintf(b, `<a:r><a:rPr lang="uz-UZ" sz="%d"%s dirty="0"><a:solidFill><a:srgbClr val="%s"/></a:solidFill>`+
			`<a:latin typeface="Calibri"/></a:rPr><a:t>%s</a:t></a:r></a:p>`,
			int(el.style.Size*100), bold, el.style.Color, escapeXML(line))
	}
	b.WriteString(`</p:txBody>`)
}

func writePicture(b *strings.Builder, id int, rid string, bx box) {
	fmt.Fprintf(b, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Picture %d"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`, id, id)
	fmt.Fprintf(b, `<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`, rid)
	b.WriteString(`<p:spPr>` + xfrm(bx) + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`)
}

func xfrm(b box) string {
	return fmt.Sprintf(`<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`,
		toEMU(b.X), toEMU(b.Y), toEMU(b.W), toEMU(b.H))
}

func toEMU(inches float64) int64 {
	return int64(inches*emu + 0.5)
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func relationship(id, kind, target string) string {
	return fmt.Sprintf(`<Relationship Id="%s" Type="%s%s" Target="%s"/>`, id, relBase, kind, target)
}

func contentTypes(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	b.WriteString(`<Default Extension="jpeg" ContentType="image/jpeg"/>`)

	overrides := [][2]string{
		{"/ppt/presentation.xml", ctPresentation},
		{"/ppt/slideMasters/slideMaster1.xml", "application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"},
		{"/ppt/slideLayouts/slideLayout1.xml", "application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"},
		{"/ppt/theme/theme1.xml", "application/vnd.openxmlformats-officedocument.theme+xml"},
		{"/ppt/presProps.xml", "application/vnd.openxmlformats-officedocument.presentationml.presProps+xml"},
		{"/ppt/viewProps.xml", "application/vnd.openxmlformats-officedocument.presentationml.viewProps+xml"},
		{"/ppt/tableStyles.xml", "application/vnd.openxmlformats-officedocument.presentationml.tableStyles+xml"},
		{"/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml"},
		{"/docProps/app.xml", "application/vnd.openxmlformats-officedocument.extended-properties+xml"},
	}
	for i := 1; i <= slides; i++ {
		overrides = append(overrides, [2]string{fmt.Sprintf("/ppt/slides/slide%d.xml", i), ctSlide})
	}
	for _, o := range overrides {
		fmt.Fprintf(&b, `<Override PartName="%s" ContentType="%s"/>`, o[0], o[1])
	}
	b.WriteString(`</Types>`)
	return b.String()
}

func presentation(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader + `<p:presentation ` + nsAll + ` saveSubsetFonts="1">`)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst><p:sldIdLst>`)
	for i := 0; i < slides; i++ {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+3)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/><p:notesSz cx="6858000" cy="9144000"/>`, toEMU(slideWidth), toEMU(slideHeight))
	b.WriteString(`</p:presentation>`)
	return b.String()
}

// presentationRels numbers slides from rId3 to match presentation().
func presentationRels(slides int) string {
	rels := []string{
		relationship("rId1", "slideMaster", "slideMasters/slideMaster1.xml"),
		relationship("rId2", "theme", "theme/theme1.xml"),
	}
	for i := 1; i <= slides; i++ {
		rels = append(rels, relationship(fmt.Sprintf("rId%d", i+2), "slide", fmt.Sprintf("slides/slide%d.xml", i)))
	}
	next := slides + 3
	for _, p := range []string{"presProps", "viewProps", "tableStyles"} {
		rels = append(rels, relationship(fmt.Sprintf("rId%d", next), p, p+".xml"))
		next++
	}
	return xmlHeader + `<Relationships xmlns="` + relsNS + `">` + strings.Join(rels, "") + `</Relationships>`
}

func coreProps(title string, created time.Time) string {
	stamp := created.UTC().Format("2006-01-02T15:04:05Z")
	return xmlHeader + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + escapeXML(title) + `</dc:title><dc:creator>Slide Bot</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

func appProps(slides int) string {
	return fmt.Sprintf(xmlHeader+`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties" `+
		`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes">`+
		`<Application>Slide Bot</Application><Slides>%d</Slides></Properties>`, slides)
}
