package deck

// Static OOXML parts shared by every deck. The package has one blank layout; slides
// draw all of their content as free shapes.

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const (
	nsA   = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsR   = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	nsP   = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	nsAll = nsA + " " + nsR + " " + nsP

	relsNS  = `http://schemas.openxmlformats.org/package/2006/relationships`
	relBase = `http://schemas.openxmlformats.org/officeDocument/2006/relationships/`

	ctPresentation = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	ctSlide        = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"
)

// EMU per inch.
const emu = 914400

const emptyTree = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

const rootRels = xmlHeader + `<Relationships xmlns="` + relsNS + `">` +
	`<Relationship Id="rId1" Type="` + relBase + `officeDocument" Target="ppt/presentation.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`<Relationship Id="rId3" Type="` + relBase + `extended-properties" Target="docProps/app.xml"/>` +
	`</Relationships>`

const slideMaster = xmlHeader + `<p:sldMaster ` + nsAll + `>` +
	`<p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" ` +
	`accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`</p:sldMaster>`

const slideMasterRels = xmlHeader + `<Relationships xmlns="` + relsNS + `">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`<Relationship Id="rId2" Type="` + relBase + `theme" Target="../theme/theme1.xml"/>` +
	`</Relationships>`

const slideLayout = xmlHeader + `<p:sldLayout ` + nsAll + ` type="blank" preserve="1">` +
	`<p:cSld name="Blank"><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

const slideLayoutRels = xmlHeader + `<Relationships xmlns="` + relsNS + `">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideMaster" Target="../slideMasters/slideMaster1.xml"/>` +
	`</Relationships>`

const presProps = xmlHeader + `<p:presentationPr ` + nsAll + `/>`

const viewProps = xmlHeader + `<p:viewPr ` + nsAll + `><p:normalViewPr><p:restoredLeft sz="15620"/><p:restoredTop sz="94660"/></p:normalViewPr>` +
	`<p:gridSpacing cx="76200" cy="76200"/></p:viewPr>`

const tableStyles = xmlHeader + `<a:tblStyleLst ` + nsA + ` def="{5C22544A-7EE6-4342-B048-85BDC9FD1C3A}"/>`

const solidPh = `<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`

const themePart = xmlHeader + `<a:theme ` + nsA + ` name="Slide Bot"><a:themeElements>` +
	`<a:clrScheme name="Slide Bot">` +
	`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>` +
	`<a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>` +
	`<a:dk2><a:srgbClr val="1F3A5F"/></a:dk2>` +
	`<a:lt2><a:srgbClr val="E8EEF5"/></a:lt2>` +
	`<a:accent1><a:srgbClr val="1F6FB2"/></a:accent1>` +
	`<a:accent2><a:srgbClr val="C27C2C"/></a:accent2>` +
	`<a:accent3><a:srgbClr val="2E7D4F"/></a:accent3>` +
	`<a:accent4><a:srgbClr val="7A4FA0"/></a:accent4>` +
	`<a:accent5><a:srgbClr val="F2A541"/></a:accent5>` +
	`<a:accent6><a:srgbClr val="27496D"/></a:accent6>` +
	`<a:hlink><a:srgbClr val="0563C1"/></a:hlink>` +
	`<a:folHlink><a:srgbClr val="954F72"/></a:folHlink>` +
	`</a:clrScheme>` +
	`<a:fontScheme name="Slide Bot">` +
	`<a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
	`</a:fontScheme>` +
	`<a:fmtScheme name="Slide Bot">` +
	`<a:fillStyleLst>` + solidPh + solidPh + solidPh + `</a:fillStyleLst>` +
	`<a:lnStyleLst><a:ln w="6350">` + solidPh + `</a:ln><a:ln w="12700">` + solidPh + `</a:ln><a:ln w="19050">` + solidPh + `</a:ln></a:lnStyleLst>` +
	`<a:effectStyleLst><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle></a:effectStyleLst>` +
	`<a:bgFillStyleLst>` + solidPh + solidPh + solidPh + `</a:bgFillStyleLst>` +
	`</a:fmtScheme>` +
	`</a:themeElements><a:objectDefaults/><a:extraClrSchemeLst/></a:theme>`
